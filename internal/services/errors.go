// Package services implements the business logic of the scheduling
// negotiation engine. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

var (
	// ErrRequestNotFound indicates that the referenced scheduling request
	// does not exist.
	ErrRequestNotFound = errors.New("scheduling request not found")

	// ErrUnknownThread is returned when an inbound reply references an email
	// thread no request owns. This is a data-integrity condition: the mailbox
	// and the engine disagree about what conversations exist.
	ErrUnknownThread = errors.New("no request owns this email thread")

	// ErrTerminalState is returned when an operation requires an open
	// negotiation but the request is already confirmed, declined, or cancelled.
	ErrTerminalState = errors.New("request is in a terminal state")

	// ErrDuplicateMessage indicates the inbound message ID was already
	// processed; the caller should treat the delivery as a no-op.
	ErrDuplicateMessage = errors.New("message already processed")

	// ErrEmptyTitle is returned when a request is created without a title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrInvalidDuration is returned when the meeting duration is not a
	// positive number of minutes.
	ErrInvalidDuration = errors.New("duration must be positive")

	// ErrNoOrganizer is returned when a request carries no internal attendee
	// flagged as organizer.
	ErrNoOrganizer = errors.New("request needs an internal organizer")

	// ErrNoExternalAttendee is returned when a request carries no external
	// attendee to negotiate with.
	ErrNoExternalAttendee = errors.New("request needs an external attendee")

	// ErrNoCandidateSlots is returned when no mutually open slot exists in
	// the lookahead window. The request is created anyway and flagged for a
	// human; this error surfaces only from explicit availability queries.
	ErrNoCandidateSlots = errors.New("no open slots in the lookahead window")

	// ErrSlotUnavailable indicates that a specific instant is busy for at
	// least one internal attendee.
	ErrSlotUnavailable = errors.New("slot is not available")

	// ErrNotConfirmed is returned when a completion is recorded against a
	// request that never reached confirmed.
	ErrNotConfirmed = errors.New("request is not confirmed")
)
