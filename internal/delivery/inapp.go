package delivery

import (
	"context"
	"fmt"

	"eventsched/internal/events"
	logx "eventsched/pkg/logx"

	"github.com/google/uuid"
)

// InApp writes an inbox Notification and nudges the user's live clients.
type InApp struct {
	repo   *events.Repo
	pusher Pusher
	log    logx.Logger
	newID  func() string
}

func NewInApp(repo *events.Repo, pusher Pusher, log logx.Logger) *InApp {
	if log.IsZero() {
		log = logx.Nop()
	}
	if pusher == nil {
		pusher = NopPusher{}
	}
	return &InApp{
		repo:   repo,
		pusher: pusher,
		log:    log.With(logx.String("comp", "delivery.in_app")),
		newID:  uuid.NewString,
	}
}

func (c *InApp) Method() events.Method { return events.MethodInApp }

func (c *InApp) Deliver(ctx context.Context, d Delivery) (bool, error) {
	if d.Event == nil || d.Notification == nil {
		return false, fmt.Errorf("in-app delivery: missing event or notification")
	}
	n := &events.Notification{
		ID:        c.newID(),
		UserID:    d.Notification.UserID,
		Type:      events.NotificationScheduledEvent,
		Title:     d.Notification.Title,
		Message:   d.Notification.Message,
		Link:      events.Link(d.Event),
		IsRead:    false,
		CreatedAt: d.Now,
	}
	if err := c.repo.CreateNotification(ctx, n); err != nil {
		return false, fmt.Errorf("create in-app notification: %w", err)
	}
	// push is fire-and-forget; the inbox row is what counts as delivered
	c.pusher.NotifyUser(ctx, n.UserID)
	c.log.Debug("in-app notification created",
		logx.String("event_id", d.Event.ID),
		logx.String("user_id", n.UserID),
		logx.String("notification_id", n.ID),
	)
	return true, nil
}
