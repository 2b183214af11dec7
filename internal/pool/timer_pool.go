// Package pool holds pooled timers shared by the connection and monitor loops.
package pool

import (
	"context"
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer armed for d, reusing a pooled one when available.
//
// Hand the timer back with PutTimer once it is no longer selected on.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer)
	if t.Reset(d) {
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool.
//
// t must not be used after this call.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Sleep blocks for d or until ctx is done. It returns ctx.Err() when the
// context ended first, nil otherwise. A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
