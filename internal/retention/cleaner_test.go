package retention

import (
	"context"
	"testing"
	"time"

	"eventsched/internal/events"
	"eventsched/internal/storage"
	logx "eventsched/pkg/logx"
)

func TestCleanerScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := events.NewRepo(storage.NewMemory())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-31 * 24 * time.Hour)
	recent := now.Add(-29 * 24 * time.Hour)

	seed := []events.ScheduledEvent{
		{ID: "done-old", Status: events.StatusCompleted, CompletedAt: &old, CreatedAt: old},
		{ID: "done-recent", Status: events.StatusCompleted, CompletedAt: &recent, CreatedAt: old},
		{ID: "active-old", Status: events.StatusActive, CreatedAt: old},
		{ID: "cancelled-old", Status: events.StatusCancelled, CompletedAt: &old, CreatedAt: old},
		{ID: "snoozed-old", Status: events.StatusSnoozed, CreatedAt: old},
	}
	for i := range seed {
		if err := repo.CreateEvent(ctx, &seed[i]); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	c := New(0, repo, logx.Nop())
	if c.Window() != DefaultWindow {
		t.Fatalf("Window = %v, want %v", c.Window(), DefaultWindow)
	}
	n, err := c.Run(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("Run = (%d, %v), want (1, nil)", n, err)
	}

	for _, tt := range []struct {
		id   string
		kept bool
	}{
		{"done-old", false},
		{"done-recent", true},
		{"active-old", true},
		{"cancelled-old", true},
		{"snoozed-old", true},
	} {
		e, err := repo.GetEvent(ctx, tt.id)
		if err != nil {
			t.Fatalf("GetEvent %s: %v", tt.id, err)
		}
		if (e != nil) != tt.kept {
			t.Fatalf("%s kept = %v, want %v", tt.id, e != nil, tt.kept)
		}
	}

	if n, _ := c.Run(ctx, now); n != 0 {
		t.Fatalf("second sweep removed %d", n)
	}
}

func TestCleanerCustomWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := events.NewRepo(storage.NewMemory())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	done := now.Add(-2 * time.Hour)
	if err := repo.CreateEvent(ctx, &events.ScheduledEvent{ID: "e1", Status: events.StatusCompleted, CompletedAt: &done}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	c := New(time.Hour, repo, logx.Nop())
	if n, err := c.Run(ctx, now); err != nil || n != 1 {
		t.Fatalf("Run = (%d, %v), want (1, nil)", n, err)
	}
}
