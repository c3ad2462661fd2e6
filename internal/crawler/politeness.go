package crawler

import (
	"context"
	"math/rand/v2"
	"time"
)

// WaitRange is an inclusive range of politeness delays.
type WaitRange struct {
	Min time.Duration
	Max time.Duration
}

// Widen returns the range shifted by the given amounts, as used between result pages.
func (w WaitRange) Widen(minExtra, maxExtra time.Duration) WaitRange {
	return WaitRange{Min: w.Min + minExtra, Max: w.Max + maxExtra}
}

// Pick draws a delay uniformly from the range using r, a source of floats in [0,1).
func (w WaitRange) Pick(r func() float64) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	if r == nil {
		r = rand.Float64
	}
	return w.Min + time.Duration(r()*float64(w.Max-w.Min))
}

// TimerPauser sleeps on a timer and returns early when the context is done.
type TimerPauser struct{}

// Pause implements Pauser.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
