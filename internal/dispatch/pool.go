package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/inventory-sync/pkg/config"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
	"github.com/angelmondragon/inventory-sync/pkg/metrics"
)

var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrClosed    = errors.New("dispatch pool closed")
)

const deadLetterWriteTimeout = 5 * time.Second

type deadLetterStore interface {
	Create(ctx context.Context, letter *models.DispatchDeadLetter) error
}

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	TaskTimeout time.Duration
}

func OptionsFromConfig(cfg config.DispatchConfig) Options {
	return Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
		TaskTimeout: cfg.TaskTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = o.BaseBackoff
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 15 * time.Second
	}
	return o
}

type envelope struct {
	ctx  context.Context
	task Task
}

// Pool runs side-effect tasks on a fixed set of workers behind a bounded
// queue. Submit never blocks: when the queue is full the task goes straight
// to the dead-letter store.
type Pool struct {
	opts        Options
	queue       chan envelope
	deadLetters deadLetterStore
	logger      *logger.Logger
	metrics     *metrics.DispatchMetrics

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewPool(opts Options, deadLetters deadLetterStore, logg *logger.Logger, m *metrics.DispatchMetrics) (*Pool, error) {
	if deadLetters == nil {
		return nil, errors.New("dead letter store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	opts = opts.withDefaults()
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Pool{
		opts:        opts,
		queue:       make(chan envelope, opts.QueueSize),
		deadLetters: deadLetters,
		logger:      logg,
		metrics:     m,
		baseCtx:     baseCtx,
		cancel:      cancel,
	}, nil
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit enqueues the task. The task keeps ctx's values (request id, item id)
// for logging but not its cancellation.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return errors.New("task run func required")
	}
	detached := context.WithoutCancel(ctx)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.deadLetter(detached, task, enums.DeadLetterReasonShutdown, 0, ErrClosed)
		return ErrClosed
	}

	select {
	case p.queue <- envelope{ctx: detached, task: task}:
		p.metrics.SetQueueDepth(len(p.queue))
		return nil
	default:
		p.metrics.IncOutcome(string(task.Kind), metrics.OutcomeQueueFull)
		p.deadLetter(detached, task, enums.DeadLetterReasonQueueFull, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When
// ctx expires first, in-flight retries are cancelled and dead-lettered.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		for env := range p.queue {
			p.deadLetter(env.ctx, env.task, enums.DeadLetterReasonShutdown, 0, ErrClosed)
		}
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for env := range p.queue {
		p.metrics.SetQueueDepth(len(p.queue))
		p.run(env)
	}
}

func (p *Pool) run(env envelope) {
	ctx, cancel := context.WithCancel(env.ctx)
	stop := context.AfterFunc(p.baseCtx, cancel)
	defer stop()
	defer cancel()

	task := env.task
	kind := string(task.Kind)
	start := time.Now()
	attempts := 0

	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		runCtx, cancelRun := context.WithTimeout(ctx, p.opts.TaskTimeout)
		defer cancelRun()

		runErr := task.Run(runCtx)
		if runErr == nil {
			return nil
		}
		if IsPermanent(runErr) {
			return runErr
		}
		p.metrics.IncOutcome(kind, metrics.OutcomeRetried)
		p.logger.Warn(p.taskContext(ctx, task, attempts), fmt.Sprintf("dispatch task attempt failed: %v", runErr))
		return retry.RetryableError(runErr)
	})
	p.metrics.ObserveDuration(kind, time.Since(start))

	if err == nil {
		p.metrics.IncOutcome(kind, metrics.OutcomeSucceeded)
		return
	}

	reason := enums.DeadLetterReasonMaxAttempts
	switch {
	case IsPermanent(err):
		reason = enums.DeadLetterReasonNonRetryable
	case p.baseCtx.Err() != nil:
		reason = enums.DeadLetterReasonShutdown
	}
	p.metrics.IncOutcome(kind, metrics.OutcomeDeadLetter)
	p.deadLetter(env.ctx, task, reason, attempts, err)
}

func (p *Pool) backoff() retry.Backoff {
	b := retry.NewExponential(p.opts.BaseBackoff)
	b = retry.WithCappedDuration(p.opts.MaxBackoff, b)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(p.opts.MaxAttempts-1), b)
}

func (p *Pool) deadLetter(ctx context.Context, task Task, reason enums.DeadLetterReason, attempts int, cause error) {
	letter := &models.DispatchDeadLetter{
		TaskKind:     task.Kind,
		Reason:       reason,
		AttemptCount: attempts,
	}
	if task.ItemID != "" {
		itemID := task.ItemID
		letter.ItemID = &itemID
	}
	if cause != nil {
		msg := cause.Error()
		letter.ErrorMessage = &msg
	}
	if task.Payload != nil {
		if raw, err := json.Marshal(task.Payload); err == nil {
			letter.Payload = raw
		}
	}

	logCtx := p.taskContext(ctx, task, attempts)
	p.logger.Error(p.logger.WithField(logCtx, "reason", string(reason)), "dispatch task dead-lettered", cause)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterWriteTimeout)
	defer cancel()
	if err := p.deadLetters.Create(writeCtx, letter); err != nil {
		p.logger.Error(logCtx, "persist dead letter", err)
	}
}

func (p *Pool) taskContext(ctx context.Context, task Task, attempts int) context.Context {
	fields := map[string]any{
		"task_kind": string(task.Kind),
		"attempt":   attempts,
	}
	if task.ItemID != "" {
		fields["item_id"] = task.ItemID
	}
	return p.logger.WithFields(ctx, fields)
}
