package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventsched/internal/storage"
)

// Repo is the typed view of the store used by the engine.
type Repo struct {
	store storage.Store
}

func NewRepo(store storage.Store) *Repo { return &Repo{store: store} }

// Store exposes the underlying document store.
func (r *Repo) Store() storage.Store { return r.store }

// ---- scheduled events ----

func (r *Repo) CreateEvent(ctx context.Context, e *ScheduledEvent) error {
	return r.store.Create(ctx, CollectionEvents, e.ID, e)
}

func (r *Repo) UpdateEvent(ctx context.Context, id string, patch storage.Patch) error {
	return r.store.Update(ctx, CollectionEvents, id, patch)
}

// GetEvent returns (nil, nil) when id does not exist.
func (r *Repo) GetEvent(ctx context.Context, id string) (*ScheduledEvent, error) {
	raw, err := r.store.Get(ctx, CollectionEvents, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e ScheduledEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", id, err)
	}
	return &e, nil
}

func (r *Repo) DeleteEvent(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionEvents, id)
}

// ActiveEvents returns every event with status ACTIVE.
func (r *Repo) ActiveEvents(ctx context.Context) ([]ScheduledEvent, error) {
	return queryAs(ctx, r.store, CollectionEvents, func(e *ScheduledEvent) bool {
		return e.Status == StatusActive
	})
}

// UserEvents returns events created by or assigned to userID.
func (r *Repo) UserEvents(ctx context.Context, userID string) ([]ScheduledEvent, error) {
	return queryAs(ctx, r.store, CollectionEvents, func(e *ScheduledEvent) bool {
		return e.CreatedBy == userID || e.AssignedTo == userID
	})
}

// CompletedBefore returns COMPLETED events whose completedAt is before cutoff.
func (r *Repo) CompletedBefore(ctx context.Context, cutoff time.Time) ([]ScheduledEvent, error) {
	return queryAs(ctx, r.store, CollectionEvents, func(e *ScheduledEvent) bool {
		return e.Status == StatusCompleted && e.CompletedAt != nil && e.CompletedAt.Before(cutoff)
	})
}

// ---- delivery records ----

func (r *Repo) CreateScheduled(ctx context.Context, n *ScheduledNotification) error {
	return r.store.Create(ctx, CollectionScheduled, n.ID, n)
}

func (r *Repo) UpdateScheduled(ctx context.Context, id string, patch storage.Patch) error {
	return r.store.Update(ctx, CollectionScheduled, id, patch)
}

// ScheduledFor returns the delivery records of one event.
func (r *Repo) ScheduledFor(ctx context.Context, eventID string) ([]ScheduledNotification, error) {
	return queryAs(ctx, r.store, CollectionScheduled, func(n *ScheduledNotification) bool {
		return n.ScheduledEventID == eventID
	})
}

// ---- in-app inbox ----

func (r *Repo) CreateNotification(ctx context.Context, n *Notification) error {
	return r.store.Create(ctx, CollectionNotifications, n.ID, n)
}

// Inbox returns the in-app notifications of userID.
func (r *Repo) Inbox(ctx context.Context, userID string) ([]Notification, error) {
	return queryAs(ctx, r.store, CollectionNotifications, func(n *Notification) bool {
		return n.UserID == userID
	})
}

// queryAs decodes every document of collection and keeps those keep accepts.
// Documents that fail to decode are skipped.
func queryAs[T any](ctx context.Context, s storage.Store, collection string, keep func(*T) bool) ([]T, error) {
	docs, err := s.Query(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, raw := range docs {
		var v T
		if json.Unmarshal(raw, &v) != nil {
			continue
		}
		if keep == nil || keep(&v) {
			out = append(out, v)
		}
	}
	return out, nil
}
