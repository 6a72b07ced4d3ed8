package scheduler

import (
	"context"
	"fmt"
	"sort"

	"eventsched/internal/events"
	"eventsched/internal/storage"
	logx "eventsched/pkg/logx"
)

// NewEvent carries the caller-owned fields of an event. The service
// stamps id, status and timestamps.
type NewEvent struct {
	Title                 string                `json:"title"`
	Description           string                `json:"description,omitempty"`
	Type                  events.EventType      `json:"type"`
	ScheduledDate         events.Date           `json:"scheduledDate"`
	ScheduledTime         events.Clock          `json:"scheduledTime"`
	Timezone              string                `json:"timezone,omitempty"`
	NotificationMethods   []events.Method       `json:"notificationMethods"`
	NotifyBefore          int                   `json:"notifyBefore"`
	IsRecurring           bool                  `json:"isRecurring"`
	RecurrenceType        events.RecurrenceType `json:"recurrenceType,omitempty"`
	RecurrenceInterval    int                   `json:"recurrenceInterval,omitempty"`
	RecurrenceEnd         *events.Date          `json:"recurrenceEnd,omitempty"`
	CreatedBy             string                `json:"createdBy"`
	AssignedTo            string                `json:"assignedTo,omitempty"`
	IsPrivate             bool                  `json:"isPrivate"`
	CanBeEditedByAssigned bool                  `json:"canBeEditedByAssigned"`
}

// EventPatch is a partial update; nil fields are left alone.
// createdBy cannot be changed.
//
// Status and ResetNotified are the external reschedule path: the engine
// itself never moves an event back to ACTIVE or clears its notify gate.
type EventPatch struct {
	Title                 *string
	Description           *string
	Type                  *events.EventType
	ScheduledDate         *events.Date
	ScheduledTime         *events.Clock
	Timezone              *string
	NotificationMethods   []events.Method
	NotifyBefore          *int
	IsRecurring           *bool
	RecurrenceType        *events.RecurrenceType
	RecurrenceInterval    *int
	RecurrenceEnd         *events.Date
	ClearRecurrenceEnd    bool
	AssignedTo            *string
	IsPrivate             *bool
	CanBeEditedByAssigned *bool

	// Status accepts ACTIVE, CANCELLED and SNOOZED; COMPLETED is set by dispatch only.
	Status        *events.Status
	ResetNotified bool
}

// AddEvent validates and stores a new ACTIVE event.
func (s *Service) AddEvent(ctx context.Context, in NewEvent) (*events.ScheduledEvent, error) {
	now := s.now()
	e := &events.ScheduledEvent{
		ID:                    s.newID(),
		Title:                 in.Title,
		Description:           in.Description,
		Type:                  in.Type,
		Status:                events.StatusActive,
		ScheduledDate:         in.ScheduledDate,
		ScheduledTime:         in.ScheduledTime,
		Timezone:              in.Timezone,
		NotificationMethods:   append([]events.Method(nil), in.NotificationMethods...),
		NotifyBefore:          in.NotifyBefore,
		IsRecurring:           in.IsRecurring,
		RecurrenceType:        in.RecurrenceType,
		RecurrenceInterval:    in.RecurrenceInterval,
		CreatedBy:             in.CreatedBy,
		AssignedTo:            in.AssignedTo,
		IsPrivate:             in.IsPrivate,
		CanBeEditedByAssigned: in.CanBeEditedByAssigned,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if e.Type == "" {
		e.Type = events.TypeCustom
	}
	if e.IsRecurring && e.RecurrenceInterval == 0 {
		e.RecurrenceInterval = 1
	}
	if in.RecurrenceEnd != nil {
		end := *in.RecurrenceEnd
		e.RecurrenceEnd = &end
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.Debug("event added", logx.String("event_id", e.ID), logx.String("created_by", e.CreatedBy))
	return e, nil
}

// UpdateEvent merges p into the stored event and refreshes updatedAt.
// It returns storage.ErrNotFound (wrapped) when id does not exist.
func (s *Service) UpdateEvent(ctx context.Context, id string, p EventPatch) error {
	cur, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("load event %s: %w", id, err)
	}
	if cur == nil {
		return fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}

	merged := *cur
	patch := storage.Patch{}
	set := func(key string, v any) { patch[key] = v }

	if p.Title != nil {
		merged.Title = *p.Title
		set("title", merged.Title)
	}
	if p.Description != nil {
		merged.Description = *p.Description
		set("description", merged.Description)
	}
	if p.Type != nil {
		merged.Type = *p.Type
		set("type", merged.Type)
	}
	if p.ScheduledDate != nil {
		merged.ScheduledDate = *p.ScheduledDate
		set("scheduledDate", merged.ScheduledDate)
	}
	if p.ScheduledTime != nil {
		merged.ScheduledTime = *p.ScheduledTime
		set("scheduledTime", merged.ScheduledTime)
	}
	if p.Timezone != nil {
		merged.Timezone = *p.Timezone
		set("timezone", merged.Timezone)
	}
	if p.NotificationMethods != nil {
		merged.NotificationMethods = append([]events.Method(nil), p.NotificationMethods...)
		set("notificationMethods", merged.NotificationMethods)
	}
	if p.NotifyBefore != nil {
		merged.NotifyBefore = *p.NotifyBefore
		set("notifyBefore", merged.NotifyBefore)
	}
	if p.IsRecurring != nil {
		merged.IsRecurring = *p.IsRecurring
		set("isRecurring", merged.IsRecurring)
	}
	if p.RecurrenceType != nil {
		merged.RecurrenceType = *p.RecurrenceType
		set("recurrenceType", merged.RecurrenceType)
	}
	if p.RecurrenceInterval != nil {
		merged.RecurrenceInterval = *p.RecurrenceInterval
		set("recurrenceInterval", merged.RecurrenceInterval)
	}
	if p.ClearRecurrenceEnd {
		merged.RecurrenceEnd = nil
		set("recurrenceEnd", nil)
	} else if p.RecurrenceEnd != nil {
		end := *p.RecurrenceEnd
		merged.RecurrenceEnd = &end
		set("recurrenceEnd", end)
	}
	if p.AssignedTo != nil {
		merged.AssignedTo = *p.AssignedTo
		set("assignedTo", merged.AssignedTo)
	}
	if p.IsPrivate != nil {
		merged.IsPrivate = *p.IsPrivate
		set("isPrivate", merged.IsPrivate)
	}
	if p.CanBeEditedByAssigned != nil {
		merged.CanBeEditedByAssigned = *p.CanBeEditedByAssigned
		set("canBeEditedByAssigned", merged.CanBeEditedByAssigned)
	}
	if p.Status != nil {
		if !p.Status.Settable() {
			return fmt.Errorf("%w: status %q cannot be set directly", events.ErrInvalidEvent, *p.Status)
		}
		merged.Status = *p.Status
		set("status", merged.Status)
		if merged.Status == events.StatusActive {
			merged.CompletedAt = nil
			set("completedAt", nil)
		}
	}
	if p.ResetNotified {
		merged.LastNotifiedAt = nil
		set("lastNotifiedAt", nil)
	}

	if err := merged.Validate(); err != nil {
		return err
	}
	set("updatedAt", s.now())
	if err := s.repo.UpdateEvent(ctx, id, patch); err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	return nil
}

// DeleteEvent removes the event. Deleting a missing id is not an error.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// GetEvent returns (nil, nil) when id does not exist.
func (s *Service) GetEvent(ctx context.Context, id string) (*events.ScheduledEvent, error) {
	return s.repo.GetEvent(ctx, id)
}

// GetUserEvents returns events created by or assigned to userID,
// earliest first.
func (s *Service) GetUserEvents(ctx context.Context, userID string) ([]events.ScheduledEvent, error) {
	list, err := s.repo.UserEvents(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc := s.Location()
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].DateTime(loc).Before(list[j].DateTime(loc))
	})
	return list, nil
}
