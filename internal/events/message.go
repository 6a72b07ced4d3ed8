package events

import (
	"strings"
	"time"
)

const messageLayout = "Monday, January 2, 2006 at 3:04 PM"

// Message renders the notification body for an event:
// the local weekday/date/time, then the description when present.
func Message(e *ScheduledEvent, fallback *time.Location) string {
	var b strings.Builder
	b.WriteString(e.DateTime(fallback).Format(messageLayout))
	if desc := strings.TrimSpace(e.Description); desc != "" {
		b.WriteString("\n\n")
		b.WriteString(desc)
	}
	return b.String()
}

// Link is the in-app route of an event.
func Link(e *ScheduledEvent) string { return "/scheduled-events/" + e.ID }
