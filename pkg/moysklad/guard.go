package moysklad

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ==================== RateGuard 限流守卫 ====================

// GuardConfig tunes a RateGuard.
type GuardConfig struct {
	Name         string        // for logs
	MinInterval  time.Duration // minimum spacing between two calls
	MaxAttempts  int           // total attempts per call
	InitialDelay time.Duration // first backoff delay, doubled after each failure
	LimitFloor   time.Duration // delay floor once a rate-limit error is seen
	ResetAfter   time.Duration // how long the latch stays open; 0 keeps it open until Reset
}

// DefaultGuardConfig is 3 attempts, 1s doubling backoff and a 5s floor on rate limit.
func DefaultGuardConfig(name string, minInterval time.Duration) GuardConfig {
	return GuardConfig{
		Name:         name,
		MinInterval:  minInterval,
		MaxAttempts:  3,
		InitialDelay: time.Second,
		LimitFloor:   5 * time.Second,
	}
}

// RateGuard combines a throttle, bounded retry with backoff and a latch that
// opens after retries are exhausted on a rate-limit error. While open, calls
// return ErrLimitLatched without touching the network.
type RateGuard struct {
	cfg     GuardConfig
	limiter *rate.Limiter

	mu        sync.Mutex
	trippedAt time.Time
	tripped   bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateGuard creates a guard.
func NewRateGuard(cfg GuardConfig) *RateGuard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &RateGuard{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// SetSleep replaces the backoff sleeper (tests).
func (g *RateGuard) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	g.sleep = fn
}

// SetClock replaces the clock used by the latch reset policy (tests).
func (g *RateGuard) SetClock(fn func() time.Time) {
	g.now = fn
}

// Tripped reports whether the latch is open, closing it when ResetAfter elapsed.
func (g *RateGuard) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.tripped {
		return false
	}
	if g.cfg.ResetAfter > 0 && g.now().Sub(g.trippedAt) >= g.cfg.ResetAfter {
		g.tripped = false
		return false
	}
	return true
}

// Reset closes the latch.
func (g *RateGuard) Reset() {
	g.mu.Lock()
	g.tripped = false
	g.mu.Unlock()
}

func (g *RateGuard) trip() {
	g.mu.Lock()
	g.tripped = true
	g.trippedAt = g.now()
	g.mu.Unlock()
}

// Execute runs call under the guard.
func (g *RateGuard) Execute(ctx context.Context, call func(ctx context.Context) error) error {
	if g.Tripped() {
		return ErrLimitLatched
	}

	var lastErr error
	delay := g.cfg.InitialDelay
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}

		if IsRateLimit(lastErr) && delay < g.cfg.LimitFloor {
			delay = g.cfg.LimitFloor
		}
		if err := g.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	if IsRateLimit(lastErr) {
		g.trip()
		return ErrLimitLatched
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
