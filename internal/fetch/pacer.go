package fetch

import (
	"context"
	"time"
)

// Pacer enforces a fixed delay between consecutive requests to one host.
type Pacer struct {
	Interval time.Duration
}

// Wait blocks for the interval or until ctx is done. A zero interval
// returns immediately.
func (p Pacer) Wait(ctx context.Context) error {
	if p.Interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
