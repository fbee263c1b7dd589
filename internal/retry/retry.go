package retry

import (
	"context"
	"math/rand"
	"time"
)

// maxDelay caps the exponential backoff growth.
const maxDelay = 30 * time.Second

// Do runs fn up to attempts times with jittered exponential backoff
// between tries. It returns nil on the first success, otherwise the
// last error. Cancellation of ctx stops the waiting early.
func Do(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !Sleep(ctx, Backoff(base, i)) {
			break
		}
	}
	return err
}

// Backoff returns the delay before retrying a zero-based attempt:
// base doubled per attempt, capped, plus up to 25% jitter.
func Backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			d = maxDelay
			break
		}
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// Sleep waits for d or until ctx is cancelled, reporting whether the
// full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
