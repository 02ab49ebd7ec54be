package resilience

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// permanentError stops Retry immediately.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying (business errors returned by a gateway).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn up to attempts times, sleeping delay (doubled each time) between tries.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			log.Printf("🔁 Retrying (attempt %d/%d)", i+1, attempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err = fn()
		if err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", attempts, err)
}
