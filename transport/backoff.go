package transport

import (
	"context"
	"time"
)

// BackoffSchedule describes the reconnect timing policy shared by the TCP
// and RTU clients.
// Ref: spec component "Client transport" - "attempt connect with per-attempt
// timeout starting at 2s and increasing by 2s up to a cap (default 30s).
// Between failed attempts wait 1s. Give up once total elapsed exceeds a
// caller-provided reconnect window (default: infinite)."
type BackoffSchedule struct {
	InitialTimeout  time.Duration
	TimeoutStep     time.Duration
	MaxTimeout      time.Duration
	BetweenAttempts time.Duration
	Window          time.Duration // 0 means infinite
}

// DefaultBackoffSchedule matches the spec's default reconnect schedule.
func DefaultBackoffSchedule() BackoffSchedule {
	return BackoffSchedule{
		InitialTimeout:  2 * time.Second,
		TimeoutStep:     2 * time.Second,
		MaxTimeout:      30 * time.Second,
		BetweenAttempts: 1 * time.Second,
		Window:          0,
	}
}

// Run calls attempt repeatedly with a per-attempt timeout that grows by
// TimeoutStep each failure (capped at MaxTimeout), waiting BetweenAttempts
// between tries, until attempt succeeds, ctx is cancelled, or Window
// elapses since the first attempt (Window == 0 means try forever).
func (b BackoffSchedule) Run(ctx context.Context, attempt func(ctx context.Context, timeout time.Duration) error) error {
	start := time.Now()

	timeout := b.InitialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	maxTimeout := b.MaxTimeout
	if maxTimeout <= 0 {
		maxTimeout = 30 * time.Second
	}
	between := b.BetweenAttempts
	if between <= 0 {
		between = time.Second
	}

	var lastErr error
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = attempt(attemptCtx, timeout)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b.Window > 0 && time.Since(start) > b.Window {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(between):
		}

		timeout += b.TimeoutStep
		if timeout > maxTimeout {
			timeout = maxTimeout
		}
	}
}
