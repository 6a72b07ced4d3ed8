package events

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownRecurrence = errors.New("unknown recurrence type")

// NextDate advances d by one step of the recurrence rule.
//
// Month and year steps clamp to the last valid day of the target month.
func NextDate(d Date, rule RecurrenceType, interval int) (Date, error) {
	if interval < 1 {
		interval = 1
	}
	switch rule {
	case RecurDaily:
		return d.AddDays(interval), nil
	case RecurWeekly:
		return d.AddDays(7 * interval), nil
	case RecurMonthly:
		return d.AddMonths(interval), nil
	case RecurYearly:
		return d.AddYears(interval), nil
	default:
		return Date{}, fmt.Errorf("%w: %q", ErrUnknownRecurrence, rule)
	}
}

// Successor builds the next occurrence of a completed recurring event.
//
// It returns ok=false when the rule has ended (next date after recurrenceEnd).
// The result carries id, a fresh ACTIVE lifecycle and now as its timestamps.
func Successor(parent *ScheduledEvent, now time.Time, id string) (next *ScheduledEvent, ok bool, err error) {
	if parent == nil || !parent.IsRecurring {
		return nil, false, nil
	}
	nd, err := NextDate(parent.ScheduledDate, parent.RecurrenceType, parent.Interval())
	if err != nil {
		return nil, false, err
	}
	if parent.RecurrenceEnd != nil && !parent.RecurrenceEnd.IsZero() && nd.After(*parent.RecurrenceEnd) {
		return nil, false, nil
	}

	cp := *parent
	cp.ID = id
	cp.ScheduledDate = nd
	cp.Status = StatusActive
	cp.LastNotifiedAt = nil
	cp.CompletedAt = nil
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.NotificationMethods = append([]Method(nil), parent.NotificationMethods...)
	if parent.RecurrenceEnd != nil {
		end := *parent.RecurrenceEnd
		cp.RecurrenceEnd = &end
	}
	return &cp, true, nil
}
