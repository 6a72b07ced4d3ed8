package delivery

import (
	"context"

	"eventsched/internal/events"
	logx "eventsched/pkg/logx"
)

// Reserved is the placeholder for a method with no integration yet.
// Attempts are accepted and never reported as delivered.
type Reserved struct {
	method events.Method
	log    logx.Logger
}

func NewReserved(method events.Method, log logx.Logger) *Reserved {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reserved{method: method, log: log.With(logx.String("comp", "delivery.reserved"))}
}

func (c *Reserved) Method() events.Method { return c.method }

func (c *Reserved) Deliver(_ context.Context, d Delivery) (bool, error) {
	fields := []logx.Field{logx.String("method", string(c.method))}
	if d.Notification != nil {
		fields = append(fields,
			logx.String("event_id", d.Notification.ScheduledEventID),
			logx.String("user_id", d.Notification.UserID),
		)
	}
	c.log.Debug("channel not integrated; attempt recorded", fields...)
	return false, nil
}
