package events

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collection names used in the store.
const (
	CollectionEvents        = "scheduled_events"
	CollectionScheduled     = "scheduled_notifications"
	CollectionNotifications = "notifications"
)

type EventType string

const (
	TypeReminder     EventType = "REMINDER"
	TypeMeeting      EventType = "MEETING"
	TypeTaskDeadline EventType = "TASK_DEADLINE"
	TypeFollowUp     EventType = "FOLLOW_UP"
	TypeRecurring    EventType = "RECURRING"
	TypeCustom       EventType = "CUSTOM"
)

func (t EventType) Valid() bool {
	switch t {
	case TypeReminder, TypeMeeting, TypeTaskDeadline, TypeFollowUp, TypeRecurring, TypeCustom:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusSnoozed   Status = "SNOOZED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled, StatusSnoozed:
		return true
	}
	return false
}

// Settable reports whether callers may set s directly. COMPLETED is
// reserved for the dispatcher, which stamps completedAt with it.
func (s Status) Settable() bool {
	return s == StatusActive || s == StatusCancelled || s == StatusSnoozed
}

// Method is a delivery channel.
type Method string

const (
	MethodInApp Method = "IN_APP"
	MethodEmail Method = "EMAIL"
	MethodSMS   Method = "SMS"
	MethodPush  Method = "PUSH"
)

// Methods lists every known delivery channel.
var Methods = []Method{MethodInApp, MethodEmail, MethodSMS, MethodPush}

func (m Method) Valid() bool {
	switch m {
	case MethodInApp, MethodEmail, MethodSMS, MethodPush:
		return true
	}
	return false
}

type RecurrenceType string

const (
	RecurDaily   RecurrenceType = "DAILY"
	RecurWeekly  RecurrenceType = "WEEKLY"
	RecurMonthly RecurrenceType = "MONTHLY"
	RecurYearly  RecurrenceType = "YEARLY"
)

func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurDaily, RecurWeekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

type NotificationType string

const (
	NotificationScheduledEvent NotificationType = "SCHEDULED_EVENT"
	NotificationSystem         NotificationType = "SYSTEM"
)

var ErrInvalidEvent = errors.New("invalid event")

// ScheduledEvent is a time-bound item a user wants to be reminded about.
//
// Status, CompletedAt and LastNotifiedAt are written by the engine only.
type ScheduledEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type"`
	Status      Status    `json:"status"`

	ScheduledDate Date   `json:"scheduledDate"`
	ScheduledTime Clock  `json:"scheduledTime"`
	Timezone      string `json:"timezone,omitempty"`

	NotificationMethods []Method `json:"notificationMethods"`
	NotifyBefore        int      `json:"notifyBefore"` // minutes

	IsRecurring        bool           `json:"isRecurring"`
	RecurrenceType     RecurrenceType `json:"recurrenceType,omitempty"`
	RecurrenceInterval int            `json:"recurrenceInterval,omitempty"`
	RecurrenceEnd      *Date          `json:"recurrenceEnd,omitempty"`

	CreatedBy             string `json:"createdBy"`
	AssignedTo            string `json:"assignedTo,omitempty"`
	IsPrivate             bool   `json:"isPrivate"`
	CanBeEditedByAssigned bool   `json:"canBeEditedByAssigned"`

	LastNotifiedAt *time.Time `json:"lastNotifiedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ScheduledNotification records one delivery attempt of one event through one channel.
//
// RetryCount and MaxRetries are stored but the dispatcher never retries.
type ScheduledNotification struct {
	ID               string     `json:"id"`
	ScheduledEventID string     `json:"scheduledEventId"`
	UserID           string     `json:"userId"`
	Method           Method     `json:"method"`
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	ScheduledFor     time.Time  `json:"scheduledFor"`
	IsSent           bool       `json:"isSent"`
	IsDelivered      bool       `json:"isDelivered"`
	RetryCount       int        `json:"retryCount"`
	MaxRetries       int        `json:"maxRetries"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	SentAt           *time.Time `json:"sentAt,omitempty"`
	DeliveredAt      *time.Time `json:"deliveredAt,omitempty"`
}

// Notification is an in-app inbox item.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Recipient is the user that receives the event's notifications.
func (e *ScheduledEvent) Recipient() string {
	if strings.TrimSpace(e.AssignedTo) != "" {
		return e.AssignedTo
	}
	return e.CreatedBy
}

// Interval returns the recurrence interval, treating values < 1 as 1.
func (e *ScheduledEvent) Interval() int {
	if e.RecurrenceInterval < 1 {
		return 1
	}
	return e.RecurrenceInterval
}

// Location resolves the event timezone, falling back to fallback
// (or UTC) when the event carries none or an unknown one.
func (e *ScheduledEvent) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	tz := strings.TrimSpace(e.Timezone)
	if tz == "" {
		return fallback
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fallback
	}
	return loc
}

// DateTime is scheduledDate + scheduledTime in the event's timezone.
func (e *ScheduledEvent) DateTime(fallback *time.Location) time.Time {
	return e.ScheduledDate.At(e.ScheduledTime, e.Location(fallback))
}

// NotifyAt is DateTime minus notifyBefore minutes.
func (e *ScheduledEvent) NotifyAt(fallback *time.Location) time.Time {
	return e.DateTime(fallback).Add(-time.Duration(e.NotifyBefore) * time.Minute)
}

// HasMethod reports whether m is among the event's notification methods.
func (e *ScheduledEvent) HasMethod(m Method) bool {
	for _, x := range e.NotificationMethods {
		if x == m {
			return true
		}
	}
	return false
}

// Validate checks the caller-owned fields of an event.
func (e *ScheduledEvent) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.CreatedBy) == "" {
		return fmt.Errorf("%w: createdBy required", ErrInvalidEvent)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Status)
	}
	if e.Status == StatusCompleted && e.CompletedAt == nil {
		return fmt.Errorf("%w: COMPLETED event requires completedAt", ErrInvalidEvent)
	}
	if e.ScheduledDate.IsZero() {
		return fmt.Errorf("%w: scheduledDate required", ErrInvalidEvent)
	}
	if !e.ScheduledTime.valid() {
		return fmt.Errorf("%w: scheduledTime out of range", ErrInvalidEvent)
	}
	if len(e.NotificationMethods) == 0 {
		return fmt.Errorf("%w: at least one notification method required", ErrInvalidEvent)
	}
	for _, m := range e.NotificationMethods {
		if !m.Valid() {
			return fmt.Errorf("%w: unknown notification method %q", ErrInvalidEvent, m)
		}
	}
	if e.NotifyBefore < 0 {
		return fmt.Errorf("%w: notifyBefore must be >= 0", ErrInvalidEvent)
	}
	if e.IsRecurring && e.RecurrenceType == "" {
		return fmt.Errorf("%w: recurring event requires recurrenceType", ErrInvalidEvent)
	}
	if e.RecurrenceType != "" && !e.RecurrenceType.Valid() {
		return fmt.Errorf("%w: unknown recurrenceType %q", ErrInvalidEvent, e.RecurrenceType)
	}
	if e.RecurrenceInterval < 0 {
		return fmt.Errorf("%w: recurrenceInterval must be positive", ErrInvalidEvent)
	}
	if tz := strings.TrimSpace(e.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidEvent, tz)
		}
	}
	return nil
}
