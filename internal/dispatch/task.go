package dispatch

import (
	"context"
	"errors"

	"github.com/angelmondragon/inventory-sync/pkg/enums"
)

// Task is one best-effort side effect. Run is retried until it succeeds,
// returns a Permanent error, or the attempt budget runs out.
type Task struct {
	Kind    enums.DispatchTaskKind
	ItemID  string
	Payload any
	Run     func(ctx context.Context) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
