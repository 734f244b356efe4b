package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted indicates the polled operation did not finish
// within the attempt budget.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// pollFunc reports whether the awaited operation has completed. A
// non-nil error aborts the poll immediately.
type pollFunc func(ctx context.Context) (done bool, err error)

// poll invokes fn at fixed intervals until it reports done, fails, the
// context is canceled or maxAttempts is reached. Fixed interval rather
// than backoff: parse jobs finish in seconds and the caller holds an
// open request.
func poll(ctx context.Context, interval time.Duration, maxAttempts int, fn pollFunc) error {
	if interval <= 0 {
		interval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrPollExhausted, maxAttempts)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
