package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"eventsched/internal/storage"
)

func validEvent() ScheduledEvent {
	return ScheduledEvent{
		ID:                  "e1",
		Title:               "Team Meeting",
		Type:                TypeMeeting,
		Status:              StatusActive,
		ScheduledDate:       MustDate("2025-01-10"),
		ScheduledTime:       MustClock("09:00"),
		NotificationMethods: []Method{MethodInApp},
		NotifyBefore:        15,
		CreatedBy:           "u1",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(e *ScheduledEvent)
		ok     bool
	}{
		{name: "valid", mutate: func(*ScheduledEvent) {}, ok: true},
		{name: "no title", mutate: func(e *ScheduledEvent) { e.Title = " " }},
		{name: "no creator", mutate: func(e *ScheduledEvent) { e.CreatedBy = "" }},
		{name: "no date", mutate: func(e *ScheduledEvent) { e.ScheduledDate = Date{} }},
		{name: "bad time", mutate: func(e *ScheduledEvent) { e.ScheduledTime = Clock{Hour: 25} }},
		{name: "no methods", mutate: func(e *ScheduledEvent) { e.NotificationMethods = nil }},
		{name: "unknown method", mutate: func(e *ScheduledEvent) { e.NotificationMethods = []Method{"FAX"} }},
		{name: "negative lead", mutate: func(e *ScheduledEvent) { e.NotifyBefore = -1 }},
		{name: "recurring without type", mutate: func(e *ScheduledEvent) { e.IsRecurring = true }},
		{name: "bad timezone", mutate: func(e *ScheduledEvent) { e.Timezone = "Mars/Olympus" }},
		{name: "unknown type", mutate: func(e *ScheduledEvent) { e.Type = "BOGUS" }},
		{name: "empty type", mutate: func(e *ScheduledEvent) { e.Type = "" }},
		{name: "unknown status", mutate: func(e *ScheduledEvent) { e.Status = "PAUSED" }},
		{name: "unknown recurrence", mutate: func(e *ScheduledEvent) {
			e.IsRecurring = true
			e.RecurrenceType = "HOURLY"
		}},
		{name: "completed without completedAt", mutate: func(e *ScheduledEvent) { e.Status = StatusCompleted }},
		{name: "completed", mutate: func(e *ScheduledEvent) {
			at := time.Date(2025, 1, 10, 9, 1, 0, 0, time.UTC)
			e.Status = StatusCompleted
			e.CompletedAt = &at
		}, ok: true},
		{name: "recurring", mutate: func(e *ScheduledEvent) {
			e.IsRecurring = true
			e.RecurrenceType = RecurDaily
		}, ok: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := validEvent()
			tt.mutate(&e)
			err := e.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("Validate err = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestNotifyAtAndRecipient(t *testing.T) {
	t.Parallel()
	nairobi, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	e := validEvent()
	want := time.Date(2025, 1, 10, 8, 45, 0, 0, nairobi)
	if got := e.NotifyAt(nairobi); !got.Equal(want) {
		t.Fatalf("NotifyAt = %v, want %v", got, want)
	}

	e.Timezone = "UTC"
	if got := e.DateTime(nairobi); !got.Equal(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("DateTime with event timezone = %v", got)
	}

	if e.Recipient() != "u1" {
		t.Fatalf("Recipient = %q, want creator", e.Recipient())
	}
	e.AssignedTo = "u2"
	if e.Recipient() != "u2" {
		t.Fatalf("Recipient = %q, want assignee", e.Recipient())
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	e := validEvent()
	if got := Message(&e, time.UTC); got != "Friday, January 10, 2025 at 9:00 AM" {
		t.Fatalf("Message = %q", got)
	}
	e.Description = "Quarterly review"
	if got := Message(&e, time.UTC); got != "Friday, January 10, 2025 at 9:00 AM\n\nQuarterly review" {
		t.Fatalf("Message with description = %q", got)
	}
	if Link(&e) != "/scheduled-events/e1" {
		t.Fatalf("Link = %q", Link(&e))
	}
}

func TestEventJSON(t *testing.T) {
	t.Parallel()
	e := validEvent()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"scheduledDate":"2025-01-10"`, `"scheduledTime":"09:00"`, `"notifyBefore":15`, `"notificationMethods":["IN_APP"]`} {
		if !strings.Contains(s, want) {
			t.Fatalf("json %s missing %s", s, want)
		}
	}

	var in ScheduledEvent
	raw := `{"title":"x","scheduledDate":"2025-01-10T00:00:00Z","scheduledTime":"18:30:15"}`
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if in.ScheduledDate.String() != "2025-01-10" || in.ScheduledTime != (Clock{18, 30, 15}) {
		t.Fatalf("decoded %s %s", in.ScheduledDate, in.ScheduledTime)
	}
	if err := json.Unmarshal([]byte(`{"scheduledTime":"quarter past"}`), &in); err == nil {
		t.Fatal("expected error for bad time")
	}
}

func TestRepo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRepo(storage.NewMemory())

	got, err := repo.GetEvent(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("GetEvent missing = (%v, %v), want (nil, nil)", got, err)
	}

	a := validEvent()
	b := validEvent()
	b.ID, b.CreatedBy, b.AssignedTo = "e2", "u9", "u1"
	c := validEvent()
	c.ID, c.CreatedBy, c.Status = "e3", "u9", StatusCompleted
	for _, e := range []ScheduledEvent{a, b, c} {
		e := e
		if err := repo.CreateEvent(ctx, &e); err != nil {
			t.Fatalf("CreateEvent %s: %v", e.ID, err)
		}
	}

	active, err := repo.ActiveEvents(ctx)
	if err != nil || len(active) != 2 {
		t.Fatalf("ActiveEvents = %d, %v; want 2", len(active), err)
	}
	mine, err := repo.UserEvents(ctx, "u1")
	if err != nil || len(mine) != 2 {
		t.Fatalf("UserEvents = %d, %v; want 2", len(mine), err)
	}

	done := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.UpdateEvent(ctx, "e3", storage.Patch{"completedAt": done}); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	old, err := repo.CompletedBefore(ctx, done.Add(time.Hour))
	if err != nil || len(old) != 1 || old[0].ID != "e3" {
		t.Fatalf("CompletedBefore = %v, %v", old, err)
	}
	if old[0].Title != "Team Meeting" {
		t.Fatalf("patch dropped untouched fields: %+v", old[0])
	}
}
