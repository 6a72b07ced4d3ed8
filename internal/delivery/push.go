package delivery

import (
	"context"

	"eventsched/internal/eventbus"
)

// Pusher tells a user's live sessions to refresh. Implementations must not block.
type Pusher interface {
	NotifyUser(ctx context.Context, userID string)
}

type NopPusher struct{}

func (NopPusher) NotifyUser(context.Context, string) {}

// BusPusher publishes eventbus.UserRefresh for the realtime gateway to forward.
type BusPusher struct {
	Bus eventbus.Bus
}

func (p BusPusher) NotifyUser(_ context.Context, userID string) {
	if p.Bus == nil || userID == "" {
		return
	}
	p.Bus.Publish(eventbus.Event{Type: eventbus.UserRefresh, Data: userID})
}
