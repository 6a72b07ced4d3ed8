package events

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNextDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		from     string
		rule     RecurrenceType
		interval int
		want     string
	}{
		{name: "daily", from: "2025-01-01", rule: RecurDaily, interval: 1, want: "2025-01-02"},
		{name: "daily interval zero", from: "2025-01-01", rule: RecurDaily, interval: 0, want: "2025-01-02"},
		{name: "daily across year", from: "2024-12-31", rule: RecurDaily, interval: 1, want: "2025-01-01"},
		{name: "weekly interval 2", from: "2025-01-10", rule: RecurWeekly, interval: 2, want: "2025-01-24"},
		{name: "monthly", from: "2025-03-15", rule: RecurMonthly, interval: 1, want: "2025-04-15"},
		{name: "monthly clamps", from: "2025-01-31", rule: RecurMonthly, interval: 1, want: "2025-02-28"},
		{name: "monthly clamps leap", from: "2024-01-31", rule: RecurMonthly, interval: 1, want: "2024-02-29"},
		{name: "monthly across year", from: "2025-11-30", rule: RecurMonthly, interval: 3, want: "2026-02-28"},
		{name: "yearly", from: "2025-06-01", rule: RecurYearly, interval: 2, want: "2027-06-01"},
		{name: "yearly leap day", from: "2024-02-29", rule: RecurYearly, interval: 1, want: "2025-02-28"},
		{name: "yearly leap to leap", from: "2024-02-29", rule: RecurYearly, interval: 4, want: "2028-02-29"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NextDate(MustDate(tt.from), tt.rule, tt.interval)
			if err != nil {
				t.Fatalf("NextDate error: %v", err)
			}
			if got.String() != tt.want {
				t.Fatalf("NextDate(%s, %s, %d) = %s, want %s", tt.from, tt.rule, tt.interval, got, tt.want)
			}
		})
	}
}

func TestNextDateUnknownRule(t *testing.T) {
	t.Parallel()
	if _, err := NextDate(MustDate("2025-01-01"), "HOURLY", 1); !errors.Is(err, ErrUnknownRecurrence) {
		t.Fatalf("err = %v, want ErrUnknownRecurrence", err)
	}
}

// Each successor steps from the previous date, so a clamped day sticks.
func TestMonthlySeriesKeepsClampedDay(t *testing.T) {
	t.Parallel()
	parent := recurringEvent()
	parent.ScheduledDate = MustDate("2025-01-31")
	parent.RecurrenceType = RecurMonthly
	parent.RecurrenceInterval = 1
	parent.RecurrenceEnd = nil
	now := time.Date(2025, 1, 31, 9, 1, 0, 0, time.UTC)

	var got []string
	for i := 0; i < 3; i++ {
		next, ok, err := Successor(parent, now, "child")
		if err != nil || !ok {
			t.Fatalf("step %d: ok=%v err=%v", i, ok, err)
		}
		got = append(got, next.ScheduledDate.String())
		parent = next
	}
	if want := "2025-02-28,2025-03-28,2025-04-28"; strings.Join(got, ",") != want {
		t.Fatalf("series = %v, want %s", got, want)
	}
}

func recurringEvent() *ScheduledEvent {
	end := MustDate("2025-01-30")
	done := time.Date(2025, 1, 10, 9, 1, 0, 0, time.UTC)
	return &ScheduledEvent{
		ID:                  "parent",
		Title:               "Standup",
		Description:         "daily sync",
		Type:                TypeMeeting,
		Status:              StatusCompleted,
		ScheduledDate:       MustDate("2025-01-10"),
		ScheduledTime:       MustClock("09:00"),
		NotificationMethods: []Method{MethodInApp, MethodEmail},
		NotifyBefore:        15,
		IsRecurring:         true,
		RecurrenceType:      RecurWeekly,
		RecurrenceInterval:  2,
		RecurrenceEnd:       &end,
		CreatedBy:           "u1",
		AssignedTo:          "u2",
		LastNotifiedAt:      &done,
		CompletedAt:         &done,
		CreatedAt:           done.Add(-time.Hour),
		UpdatedAt:           done,
	}
}

func TestSuccessor(t *testing.T) {
	t.Parallel()
	parent := recurringEvent()
	now := time.Date(2025, 1, 10, 9, 1, 0, 0, time.UTC)

	next, ok, err := Successor(parent, now, "child")
	if err != nil || !ok {
		t.Fatalf("Successor = (%v, %v), want ok", ok, err)
	}
	if next.ID != "child" || next.ScheduledDate.String() != "2025-01-24" {
		t.Fatalf("child = %s on %s", next.ID, next.ScheduledDate)
	}
	if next.Status != StatusActive || next.LastNotifiedAt != nil || next.CompletedAt != nil {
		t.Fatalf("child lifecycle not reset: %+v", next)
	}
	if !next.CreatedAt.Equal(now) || !next.UpdatedAt.Equal(now) {
		t.Fatalf("child timestamps = %v / %v, want %v", next.CreatedAt, next.UpdatedAt, now)
	}
	if next.Title != parent.Title || next.AssignedTo != "u2" || next.NotifyBefore != 15 || next.RecurrenceInterval != 2 {
		t.Fatalf("child did not inherit parent fields: %+v", next)
	}

	next.NotificationMethods[0] = MethodSMS
	*next.RecurrenceEnd = MustDate("2030-01-01")
	if parent.NotificationMethods[0] != MethodInApp || parent.RecurrenceEnd.String() != "2025-01-30" {
		t.Fatal("child shares slices or pointers with parent")
	}
}

func TestSuccessorRespectsEnd(t *testing.T) {
	t.Parallel()
	now := time.Now()

	parent := recurringEvent()
	end := MustDate("2025-01-20")
	parent.RecurrenceEnd = &end
	if next, ok, err := Successor(parent, now, "child"); err != nil || ok || next != nil {
		t.Fatalf("Successor past end = (%v, %v, %v), want none", next, ok, err)
	}

	// nextDate equal to the end date still recurs
	parent = recurringEvent()
	end = MustDate("2025-01-24")
	parent.RecurrenceEnd = &end
	if _, ok, err := Successor(parent, now, "child"); err != nil || !ok {
		t.Fatalf("Successor on end = (%v, %v), want ok", ok, err)
	}

	parent = recurringEvent()
	parent.IsRecurring = false
	if _, ok, _ := Successor(parent, now, "child"); ok {
		t.Fatal("non-recurring event produced a successor")
	}

	parent = recurringEvent()
	parent.RecurrenceType = "SOMETIMES"
	if _, _, err := Successor(parent, now, "child"); !errors.Is(err, ErrUnknownRecurrence) {
		t.Fatalf("err = %v, want ErrUnknownRecurrence", err)
	}
}
