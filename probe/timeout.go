package probe

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a call does not settle before its deadline.
var ErrTimeout = errors.New("probe: call timed out")

// WithTimeout runs fn under a hard deadline. If fn settles first, its outcome
// is returned. If the deadline elapses first, the call is abandoned: the
// derived context is cancelled so HTTP transports tear down their sockets,
// and fn's eventual result is written into a buffered channel that nothing
// reads.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, d)

	done := make(chan error, 1) // buffered: the abandoned call must not block
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		cancel()
		return err
	case <-callCtx.Done():
		cancel()
		return ErrTimeout
	}
}
