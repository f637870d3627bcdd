package enums

// DispatchTaskKind labels side-effect tasks run by the dispatch pool.
type DispatchTaskKind string

const (
	DispatchTaskAlert           DispatchTaskKind = "alert"
	DispatchTaskChannelPush     DispatchTaskKind = "channel_push"
	DispatchTaskLowStockWatch   DispatchTaskKind = "low_stock_watch"
	DispatchTaskCacheInvalidate DispatchTaskKind = "cache_invalidate"
	DispatchTaskWebhookForward  DispatchTaskKind = "webhook_forward"
	DispatchTaskOrderFulfilled  DispatchTaskKind = "order_fulfilled"
)

type DeadLetterReason string

const (
	DeadLetterReasonMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterReasonNonRetryable DeadLetterReason = "non_retryable"
	DeadLetterReasonQueueFull    DeadLetterReason = "queue_full"
	DeadLetterReasonShutdown     DeadLetterReason = "shutdown"
)

var validDeadLetterReasons = []DeadLetterReason{
	DeadLetterReasonMaxAttempts,
	DeadLetterReasonNonRetryable,
	DeadLetterReasonQueueFull,
	DeadLetterReasonShutdown,
}

func (r DeadLetterReason) IsValid() bool {
	for _, candidate := range validDeadLetterReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
