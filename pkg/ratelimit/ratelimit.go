package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces operations so that consecutive starts are at least one
// interval apart, optionally randomised by a jitter fraction. The first call
// to Wait never blocks. It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	last     time.Time
}

// NewLimiter creates a limiter that enforces interval between operation
// starts. Jitter is clamped to [0, 1]. If interval is <= 0, the limiter does
// not block.
func NewLimiter(interval time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Limiter{
		interval: interval,
		jitter:   jitter,
	}
}

// Wait blocks until the next operation may start, or until the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.last.IsZero() {
		l.last = time.Now()
		return nil
	}

	wait := time.Until(l.last.Add(l.nextInterval()))
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.last = time.Now()
	return nil
}

func (l *Limiter) nextInterval() time.Duration {
	if l.jitter == 0 {
		return l.interval
	}
	// Jitter only lengthens the interval, uniformly up to jitter of it.
	factor := rand.Float64()
	return l.interval + time.Duration(float64(l.interval)*l.jitter*factor)
}
