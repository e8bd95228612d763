// Package domain defines the persistence models for scheduling requests,
// attendees, audit actions, and attention items. These types are mapped with
// GORM and form the core data layer of the scheduling negotiation engine.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Request statuses. A request is terminal once it reaches confirmed, declined,
// or cancelled, with the single exception that no-show recovery may still
// mutate a confirmed request after its scheduled time has passed.
const (
	StatusNegotiating      = "negotiating"
	StatusAwaitingResponse = "awaiting_response"
	StatusConfirmed        = "confirmed"
	StatusDeclined         = "declined"
	StatusCancelled        = "cancelled"
)

// OpenStatuses are the states in which the negotiation is still in flight and
// inbound intents or automation may act on the request.
var OpenStatuses = []string{StatusNegotiating, StatusAwaitingResponse}

// Automation claim-token action types (see SchedulingRequest.NextActionType).
const (
	NextActionSendReminder          = "send_reminder"
	NextActionSendFollowUp          = "send_follow_up"
	NextActionReviewCounterProposal = "review_counter_proposal"
	NextActionDetectNoShow          = "detect_no_show"
)

// Audit action types recorded in scheduling_actions.
const (
	ActionEmailSent        = "email_sent"
	ActionEmailReceived    = "email_received"
	ActionResponseAnalyzed = "response_analyzed"
	ActionReminderSent     = "reminder_sent"
	ActionFollowUpSent     = "follow_up_sent"
	ActionNoShowDetected   = "no_show_detected"
	ActionReopened         = "negotiation_reopened"
	ActionMeetingBooked    = "meeting_booked"
	ActionMeetingCompleted = "meeting_completed"
	ActionRequestDeclined  = "request_declined"
	ActionRequestCancelled = "request_cancelled"
	ActionAttentionRaised  = "attention_raised"
	ActionErrorLogged      = "error_logged"
)

// Actors responsible for an audit action.
const (
	ActorProspect = "prospect"
	ActorSystem   = "system"
	ActorUser     = "user"
)

// Attendee sides.
const (
	SideInternal = "internal"
	SideExternal = "external"
)

// TimeList is an ordered list of instants stored as a JSON array of RFC 3339
// strings. SQLite has no native array type, so proposal lists round-trip
// through a TEXT column via the Valuer/Scanner interfaces.
type TimeList []time.Time

// Value implements driver.Valuer. An empty list marshals to NULL so that
// "no counter proposals yet" stays distinguishable at the SQL level.
func (l TimeList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]time.Time(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for TEXT/BLOB/NULL columns.
func (l *TimeList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("domain: cannot scan %T into TimeList", src)
	}
	var out []time.Time
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// Contains reports whether the list holds an instant equal to t.
func (l TimeList) Contains(t time.Time) bool {
	for _, v := range l {
		if v.Equal(t) {
			return true
		}
	}
	return false
}

// SchedulingRequest is the aggregate root of one meeting negotiation with an
// external counterparty. Status is mutated exclusively through the negotiation
// state machine; every transition is mirrored by exactly one SchedulingAction.
//
// Invariants:
//   - ScheduledTime is non-nil iff Status == confirmed.
//   - CalendarEventID is set only after a successful booking call.
//   - NextActionType/NextActionAt form the automation claim token: cleared
//     atomically before a due action is handled, so duplicate sweeps no-op.
type SchedulingRequest struct {
	ID              string `json:"id"               gorm:"type:char(36);primaryKey"`
	Title           string `json:"title"            gorm:"type:varchar(255);not null"`
	CompanyRef      string `json:"company_ref"      gorm:"type:varchar(64);not null;index"`
	MeetingType     string `json:"meeting_type"     gorm:"type:varchar(32);not null"`
	DurationMinutes int    `json:"duration_minutes" gorm:"not null"`

	Status string `json:"status" gorm:"type:varchar(24);not null;index;check:status IN ('negotiating','awaiting_response','confirmed','declined','cancelled')"`

	ProposedTimes        TimeList `json:"proposed_times"                   gorm:"type:text"`
	CounterProposedTimes TimeList `json:"counter_proposed_times,omitempty" gorm:"type:text"`

	NextActionType *string    `json:"next_action_type,omitempty" gorm:"type:varchar(32);index:idx_due,priority:1"`
	NextActionAt   *time.Time `json:"next_action_at,omitempty"   gorm:"index:idx_due,priority:2"`

	EmailThreadID   string     `json:"email_thread_id"             gorm:"type:varchar(128);not null;index"`
	ScheduledTime   *time.Time `json:"scheduled_time,omitempty"`
	CalendarEventID *string    `json:"calendar_event_id,omitempty" gorm:"type:varchar(128)"`

	NoShowCount  int  `json:"no_show_count" gorm:"not null;default:0"`
	Paused       bool `json:"paused"        gorm:"not null;default:false"`
	AttemptCount int  `json:"attempt_count" gorm:"not null;default:0"`

	CreatedBy string         `json:"created_by" gorm:"type:varchar(64);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Attendees []SchedulingAttendee `json:"attendees,omitempty" gorm:"foreignKey:RequestID;references:ID"`
}

// TableName returns the database table name for SchedulingRequest.
func (SchedulingRequest) TableName() string { return "scheduling_requests" }

// Terminal reports whether the request has reached a final status.
func (r *SchedulingRequest) Terminal() bool {
	switch r.Status {
	case StatusConfirmed, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether the negotiation is still in flight.
func (r *SchedulingRequest) Open() bool { return !r.Terminal() }

// CandidateTimes returns the union of proposed and counter-proposed times,
// the only instants an accept may legitimately select.
func (r *SchedulingRequest) CandidateTimes() TimeList {
	out := make(TimeList, 0, len(r.ProposedTimes)+len(r.CounterProposedTimes))
	out = append(out, r.ProposedTimes...)
	out = append(out, r.CounterProposedTimes...)
	return out
}

// SchedulingAttendee is a participant on one scheduling request. Exactly one
// internal attendee per request carries IsOrganizer = true; external attendees
// may mark one primary contact whose name is used in outreach greetings.
type SchedulingAttendee struct {
	ID               string         `json:"id"                 gorm:"type:char(36);primaryKey"`
	RequestID        string         `json:"request_id"         gorm:"type:char(36);not null;index:idx_request_attendees"`
	Side             string         `json:"side"               gorm:"type:varchar(16);not null;check:side IN ('internal','external')"`
	IsOrganizer      bool           `json:"is_organizer"       gorm:"not null;default:false"`
	IsPrimaryContact bool           `json:"is_primary_contact" gorm:"not null;default:false"`
	Email            string         `json:"email"              gorm:"type:varchar(255);not null"`
	Name             string         `json:"name"               gorm:"type:varchar(255);not null"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`

	Request SchedulingRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SchedulingAttendee.
func (SchedulingAttendee) TableName() string { return "scheduling_attendees" }

// SchedulingAction is the append-only audit log of the negotiation: every
// message, interpretation, transition, and recovery step lands here. It is the
// system of record for "what happened and why" and is never reconstructed
// lazily from raw messages.
//
// For status transitions PreviousStatus != NewStatus; informational actions
// record the current status in both fields.
type SchedulingAction struct {
	ID        string `json:"id"                    gorm:"type:char(36);primaryKey"`
	RequestID string `json:"scheduling_request_id" gorm:"type:char(36);not null;index:idx_request_actions,priority:1;column:scheduling_request_id"`

	ActionType string `json:"action_type" gorm:"type:varchar(32);not null;index"`
	Actor      string `json:"actor"       gorm:"type:varchar(16);not null;check:actor IN ('prospect','system','user')"`

	TimesProposed TimeList `json:"times_proposed,omitempty" gorm:"type:text"`
	AIReasoning   string   `json:"ai_reasoning,omitempty"   gorm:"type:text;column:ai_reasoning"`

	PreviousStatus string `json:"previous_status" gorm:"type:varchar(24);not null"`
	NewStatus      string `json:"new_status"      gorm:"type:varchar(24);not null"`

	// Outbound composition bookkeeping: Attempt numbers outreach messages per
	// request, Content holds the exact body sent (idempotent re-compose reads
	// it back), SnippetID records the social-proof snippet used, if any.
	Attempt   int    `json:"attempt,omitempty"    gorm:"not null;default:0"`
	Content   string `json:"content,omitempty"    gorm:"type:text"`
	SnippetID string `json:"snippet_id,omitempty" gorm:"type:varchar(64)"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_request_actions,priority:2"`

	Request SchedulingRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SchedulingAction.
func (SchedulingAction) TableName() string { return "scheduling_actions" }

// Transition reports whether this action recorded a status change.
func (a *SchedulingAction) Transition() bool { return a.PreviousStatus != a.NewStatus }

// AttentionItem is a persisted "needs a human" marker raised when the engine
// deliberately stops automating: questions, unclear or low-confidence
// interpretations, repeated no-shows, and data-integrity problems.
type AttentionItem struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	RequestID  string     `json:"request_id"  gorm:"type:char(36);not null;index"`
	Reason     string     `json:"reason"      gorm:"type:varchar(64);not null"`
	Excerpt    string     `json:"excerpt"     gorm:"type:text"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// TableName returns the database table name for AttentionItem.
func (AttentionItem) TableName() string { return "attention_items" }

// Attention reasons.
const (
	AttentionQuestion          = "prospect_question"
	AttentionUnclear           = "unclear_reply"
	AttentionNoShowEscalated   = "no_show_escalated"
	AttentionDataIntegrity     = "data_integrity"
	AttentionBookingConflict   = "booking_conflict"
	AttentionAttemptsExhausted = "attempts_exhausted"
)
