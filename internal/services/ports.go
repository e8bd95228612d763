// Package services – outbound ports
//
// This file declares the interfaces the engine needs from the outside world:
// sending email into an existing thread and booking calendar events. The
// concrete adapters (Graph, Gmail, CalDAV) live outside this module; tests use
// in-memory fakes. Accepting narrow interfaces here keeps the negotiation
// logic independent of any provider SDK.
package services

import (
	"context"
	"time"
)

// Clock abstracts time.Now so the escalation ladder and claim-token math are
// testable with a frozen instant.
type Clock func() time.Time

// OutboundMessage is one email to be delivered into an existing thread.
type OutboundMessage struct {
	ThreadID string
	To       []string
	Subject  string
	Body     string
}

// MessageSender delivers outbound messages. Send returns the provider's
// message ID for the delivered mail.
type MessageSender interface {
	Send(ctx context.Context, msg OutboundMessage) (messageID string, err error)
}

// BookingRequest describes the calendar event to create on confirmation.
type BookingRequest struct {
	Title           string
	Start           time.Time
	DurationMinutes int
	AttendeeEmails  []string
	Description     string
}

// Booking is the result of a successful calendar booking.
type Booking struct {
	EventID string
	WebLink string
}

// CalendarBooker creates calendar events. Book must be safe to retry with the
// same request; providers deduplicate on their side or tolerate duplicates.
type CalendarBooker interface {
	Book(ctx context.Context, br BookingRequest) (Booking, error)
}
