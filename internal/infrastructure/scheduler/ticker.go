package scheduler

import (
	"context"
	"sync"
	"time"

	"PatchRadar/internal/ports"
)

// TickerScheduler fires the job on wall-clock boundaries of a fixed interval.
type TickerScheduler struct {
	interval time.Duration
	runFirst bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a driver that triggers every interval, aligned to the
// interval boundary (an hourly interval fires at :00). runFirst triggers once at start.
func NewTickerScheduler(interval time.Duration, runFirst bool) *TickerScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TickerScheduler{
		interval: interval,
		runFirst: runFirst,
		now:      time.Now,
		after:    time.After,
	}
}

// Start begins ticking in a background goroutine. Calling Start twice is a no-op.
func (c *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done

	go func() {
		defer close(done)
		if c.runFirst {
			job(c.now())
		}
		for {
			select {
			case t := <-c.after(c.untilNext()):
				job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the goroutine and waits for an in-flight job to return or ctx to expire.
func (c *TickerScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TickerScheduler) untilNext() time.Duration {
	now := c.now()
	next := now.Truncate(c.interval).Add(c.interval)
	return next.Sub(now)
}
