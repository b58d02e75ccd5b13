package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// realTimer is a backoff.Timer on top of time.Timer.
type realTimer struct {
	timer *time.Timer
}

func newRealTimer() backoff.Timer {
	return &realTimer{}
}

func (t *realTimer) C() <-chan time.Time {
	return t.timer.C
}

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// sleepContext waits for d on t, returning early with the context error.
func sleepContext(ctx context.Context, t backoff.Timer, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t.Start(d)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
