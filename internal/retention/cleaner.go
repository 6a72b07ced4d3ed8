// Package retention deletes completed events once they age out.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventsched/internal/events"
	logx "eventsched/pkg/logx"
)

const DefaultWindow = 30 * 24 * time.Hour

type Cleaner struct {
	repo *events.Repo
	log  logx.Logger

	mu     sync.Mutex
	window time.Duration
}

func New(window time.Duration, repo *events.Repo, log logx.Logger) *Cleaner {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Cleaner{repo: repo, log: log.With(logx.String("comp", "retention"))}
	c.SetWindow(window)
	return c
}

// SetWindow changes the retention window; <= 0 restores the default.
func (c *Cleaner) SetWindow(window time.Duration) {
	if window <= 0 {
		window = DefaultWindow
	}
	c.mu.Lock()
	c.window = window
	c.mu.Unlock()
}

func (c *Cleaner) Window() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// Run deletes COMPLETED events whose completedAt is older than now minus
// the window, and returns how many were removed. Other statuses are never
// touched. A failed delete is logged and skipped.
func (c *Cleaner) Run(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-c.Window())
	old, err := c.repo.CompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query completed events: %w", err)
	}

	deleted := 0
	for _, e := range old {
		if ctx.Err() != nil {
			break
		}
		if err := c.repo.DeleteEvent(ctx, e.ID); err != nil {
			c.log.Warn("delete expired event failed", logx.String("event_id", e.ID), logx.Err(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		c.log.Info("expired events removed", logx.Int("count", deleted), logx.Time("cutoff", cutoff))
	}
	return deleted, nil
}
