// Package services – NegotiationService
//
// This file implements the negotiation state machine: creating requests and
// sending the opening outreach, processing inbound replies end to end
// (idempotency receipt, interpretation, grounding reconciliation, dispatch),
// and the explicit cancel/complete operations. Status is mutated exclusively
// through compare-and-set writes in the repo layer; every transition lands as
// exactly one audit action.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// request identifiers and interpreted intents.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridian-crm/go-scheduling-backend/internal/config"
	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/grounding"
	"github.com/meridian-crm/go-scheduling-backend/internal/interpret"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
)

// NegotiationService coordinates the full lifecycle of a scheduling request.
type NegotiationService struct {
	DB           *gorm.DB
	Interpreter  interpret.Interpreter
	Availability *AvailabilityService
	Composer     *Composer
	Sender       MessageSender
	Booker       CalendarBooker
	Attention    *AttentionService
	Cfg          config.SchedulingConfig
	ReceiptTTL   time.Duration
	Now          Clock
}

// CreateRequest validates and persists a new scheduling request, finds
// mutually open candidate slots, and sends the opening outreach. When no slot
// can be found the request is still created and flagged for a human instead
// of failing the call.
func (s *NegotiationService) CreateRequest(ctx context.Context, req *domain.SchedulingRequest) error {
	tr := otel.Tracer("services/NegotiationService")
	ctx, span := tr.Start(ctx, "CreateRequest")
	defer span.End()

	if err := validateNewRequest(req); err != nil {
		return err
	}

	now := s.now()
	table := grounding.Build(now, s.Cfg.LookaheadDays)

	var internals []string
	for _, a := range req.Attendees {
		if a.Side == domain.SideInternal {
			internals = append(internals, a.Email)
		}
	}

	slots, availErr := s.Availability.FindSlots(ctx, internals, table, req.DurationMinutes, s.Cfg.ProposeCount, nil)
	req.ProposedTimes = slots

	if err := repo.CreateRequest(ctx, s.DB, req); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("request.id", req.ID))

	if availErr != nil || len(slots) == 0 {
		excerpt := "no mutually open slot in the lookahead window"
		if availErr != nil {
			excerpt = "availability lookup failed: " + availErr.Error()
		}
		return s.Attention.Raise(ctx, req, domain.AttentionBookingConflict, excerpt)
	}

	out, replayed, err := s.deliverOutreach(ctx, req, OutreachInitial, 1, slots)
	if err != nil {
		return err
	}
	req.AttemptCount = 1
	if err := repo.ReplaceProposedTimes(ctx, s.DB, req.ID, slots, 1); err != nil {
		return err
	}
	if err := repo.UpdateStatusCAS(ctx, s.DB, req.ID, []string{domain.StatusNegotiating}, domain.StatusAwaitingResponse, nil); err != nil {
		return err
	}
	// The opening email and the negotiating -> awaiting_response move are one
	// event, so the transition is recorded on the email_sent action itself.
	if !replayed {
		if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
			RequestID:      req.ID,
			ActionType:     domain.ActionEmailSent,
			Actor:          domain.ActorSystem,
			TimesProposed:  slots,
			Attempt:        1,
			Content:        out.Body,
			SnippetID:      out.SnippetID,
			PreviousStatus: domain.StatusNegotiating,
			NewStatus:      domain.StatusAwaitingResponse,
		}); err != nil {
			return err
		}
	}
	req.Status = domain.StatusAwaitingResponse
	transitions.WithLabelValues(domain.StatusAwaitingResponse).Inc()

	return repo.ScheduleNextAction(ctx, s.DB, req.ID, domain.NextActionSendFollowUp, now.Add(s.Cfg.FollowUpDelay))
}

// ProcessReply runs one inbound reply through the engine: route by thread,
// take the idempotency receipt, interpret, reconcile against the grounding
// table, and dispatch on the resulting intent. It returns the request and the
// sanitized interpretation for the caller's response.
func (s *NegotiationService) ProcessReply(ctx context.Context, msg domain.InboundMessage) (*domain.SchedulingRequest, domain.Interpretation, error) {
	tr := otel.Tracer("services/NegotiationService")
	ctx, span := tr.Start(ctx, "ProcessReply",
		trace.WithAttributes(attribute.String("message.id", msg.ID)),
	)
	defer span.End()

	var zero domain.Interpretation

	req, err := repo.GetRequestByThread(ctx, s.DB, msg.ConversationID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, zero, ErrUnknownThread
	}
	if err != nil {
		return nil, zero, err
	}
	span.SetAttributes(attribute.String("request.id", req.ID))

	// Receipt before processing: a concurrent duplicate delivery loses the
	// race at the database, not in application logic.
	if _, err := repo.CreateReceipt(ctx, s.DB, msg.ID, req.ID, s.ReceiptTTL); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return req, zero, ErrDuplicateMessage
		}
		return req, zero, err
	}

	if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      req.ID,
		ActionType:     domain.ActionEmailReceived,
		Actor:          domain.ActorProspect,
		Content:        msg.Body,
		PreviousStatus: req.Status,
		NewStatus:      req.Status,
	}); err != nil {
		return req, zero, err
	}

	if req.Terminal() {
		if aerr := s.Attention.Raise(ctx, req, domain.AttentionDataIntegrity,
			"reply received on "+req.Status+" request: "+excerpt(msg)); aerr != nil {
			return req, zero, aerr
		}
		return req, zero, ErrTerminalState
	}

	now := s.now()
	table := grounding.Build(now, s.Cfg.LookaheadDays)
	in := interpret.Input{
		Body:          msg.Body,
		Subject:       msg.Subject,
		ProposedTimes: req.ProposedTimes,
		Table:         table,
		MeetingType:   req.MeetingType,
	}

	ictx, cancel := context.WithTimeout(ctx, s.Cfg.InterpreterTimeout)
	itp, err := s.Interpreter.Classify(ictx, in)
	cancel()
	if err != nil {
		// Release the receipt so the next delivery attempt can reprocess.
		if derr := repo.DeleteReceipt(ctx, s.DB, msg.ID); derr != nil {
			return req, zero, derr
		}
		_ = repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
			RequestID:      req.ID,
			ActionType:     domain.ActionErrorLogged,
			Actor:          domain.ActorSystem,
			AIReasoning:    "interpreter failed: " + err.Error(),
			PreviousStatus: req.Status,
			NewStatus:      req.Status,
		})
		return req, zero, fmt.Errorf("interpret reply: %w", err)
	}

	itp = interpret.Sanitize(in, req.CandidateTimes(), itp)
	if itp.Intent != domain.IntentUnclear && itp.Confidence < s.Cfg.MinConfidence {
		itp = itp.Downgrade(fmt.Sprintf("confidence %.2f below floor %.2f", itp.Confidence, s.Cfg.MinConfidence))
	}
	span.SetAttributes(attribute.String("reply.intent", itp.Intent))
	repliesProcessed.WithLabelValues(itp.Intent).Inc()

	// Counter, question and unclear all re-open an awaiting thread; the
	// response_analyzed action records that transition.
	prev := req.Status
	newStatus := prev
	switch itp.Intent {
	case domain.IntentCounterPropose, domain.IntentQuestion, domain.IntentUnclear:
		if prev == domain.StatusAwaitingResponse {
			newStatus = domain.StatusNegotiating
		}
	}
	if newStatus != prev {
		if err := repo.UpdateStatusCAS(ctx, s.DB, req.ID, domain.OpenStatuses, newStatus, nil); err != nil {
			return req, itp, err
		}
		req.Status = newStatus
		transitions.WithLabelValues(newStatus).Inc()
	}

	var analyzed domain.TimeList
	if itp.SelectedTime != nil {
		analyzed = domain.TimeList{*itp.SelectedTime}
	} else {
		analyzed = itp.CounterProposedTimes
	}
	if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      req.ID,
		ActionType:     domain.ActionResponseAnalyzed,
		Actor:          domain.ActorSystem,
		TimesProposed:  analyzed,
		AIReasoning:    fmt.Sprintf("intent=%s confidence=%.2f %s", itp.Intent, itp.Confidence, itp.Reasoning),
		PreviousStatus: prev,
		NewStatus:      newStatus,
	}); err != nil {
		return req, itp, err
	}

	switch itp.Intent {
	case domain.IntentAccept:
		err = s.handleAccept(ctx, req, *itp.SelectedTime, table)
	case domain.IntentDecline:
		err = s.handleDecline(ctx, req, itp.Reasoning)
	case domain.IntentCounterPropose:
		err = s.handleCounter(ctx, req, itp.CounterProposedTimes, now)
	case domain.IntentQuestion:
		err = s.holdForHuman(ctx, req, domain.AttentionQuestion, excerpt(msg))
	default:
		err = s.holdForHuman(ctx, req, domain.AttentionUnclear, excerpt(msg))
	}
	return req, itp, err
}

// handleAccept verifies the selected slot against internal calendars, books
// the event, and confirms the request with its post-confirmation claim token.
func (s *NegotiationService) handleAccept(ctx context.Context, req *domain.SchedulingRequest, sel time.Time, table grounding.Table) error {
	internals, err := repo.InternalEmails(ctx, s.DB, req.ID)
	if err != nil {
		return err
	}

	ok, err := s.Availability.CheckSlot(ctx, internals, sel, req.DurationMinutes)
	if err != nil {
		return s.holdForHuman(ctx, req, domain.AttentionBookingConflict,
			"availability check failed for accepted slot "+formatSlot(sel)+": "+err.Error())
	}
	if !ok {
		// The accepted slot went stale: re-propose instead of booking over a
		// conflict or bouncing the prospect to a human.
		return s.reProposeTimes(ctx, req, table, []time.Time{sel})
	}
	return s.bookAndConfirm(ctx, req, sel)
}

// bookAndConfirm creates the calendar event and performs the confirmation
// transition, arming the reminder or no-show token in the same write.
func (s *NegotiationService) bookAndConfirm(ctx context.Context, req *domain.SchedulingRequest, sel time.Time) error {
	emails := attendeeEmails(req)
	bctx, cancel := context.WithTimeout(ctx, s.Cfg.SendTimeout)
	booking, err := s.Booker.Book(bctx, BookingRequest{
		Title:           req.Title,
		Start:           sel,
		DurationMinutes: req.DurationMinutes,
		AttendeeEmails:  emails,
		Description:     req.Title,
	})
	cancel()
	if err != nil {
		return s.holdForHuman(ctx, req, domain.AttentionBookingConflict,
			"calendar booking failed: "+err.Error())
	}

	now := s.now()
	nextType := domain.NextActionSendReminder
	nextAt := sel.Add(-s.Cfg.ReminderLead)
	if !nextAt.After(now) {
		nextType = domain.NextActionDetectNoShow
		nextAt = sel.Add(s.Cfg.NoShowGrace)
	}
	if err := repo.ConfirmRequest(ctx, s.DB, req.ID, sel, booking.EventID, nextType, nextAt); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return s.Attention.Raise(ctx, req, domain.AttentionBookingConflict,
				"event "+booking.EventID+" was booked but the request left an open status concurrently")
		}
		return err
	}

	prev := req.Status
	req.Status = domain.StatusConfirmed
	req.ScheduledTime = &sel
	req.CalendarEventID = &booking.EventID
	transitions.WithLabelValues(domain.StatusConfirmed).Inc()

	return repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      req.ID,
		ActionType:     domain.ActionMeetingBooked,
		Actor:          domain.ActorSystem,
		TimesProposed:  domain.TimeList{sel},
		PreviousStatus: prev,
		NewStatus:      domain.StatusConfirmed,
	})
}

func (s *NegotiationService) handleDecline(ctx context.Context, req *domain.SchedulingRequest, reasoning string) error {
	err := repo.UpdateStatusCAS(ctx, s.DB, req.ID, domain.OpenStatuses, domain.StatusDeclined, map[string]any{
		"next_action_type": nil,
		"next_action_at":   nil,
	})
	if errors.Is(err, repo.ErrStale) {
		return ErrTerminalState
	}
	if err != nil {
		return err
	}
	prev := req.Status
	req.Status = domain.StatusDeclined
	transitions.WithLabelValues(domain.StatusDeclined).Inc()

	return repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      req.ID,
		ActionType:     domain.ActionRequestDeclined,
		Actor:          domain.ActorProspect,
		AIReasoning:    reasoning,
		PreviousStatus: prev,
		NewStatus:      domain.StatusDeclined,
	})
}

// handleCounter stores the counter-proposed times and arms the review token;
// the sweep checks availability and either books or re-proposes.
func (s *NegotiationService) handleCounter(ctx context.Context, req *domain.SchedulingRequest, times []time.Time, now time.Time) error {
	err := repo.SetCounterProposals(ctx, s.DB, req.ID, times, now)
	if errors.Is(err, repo.ErrStale) {
		return ErrTerminalState
	}
	if err != nil {
		return err
	}
	req.CounterProposedTimes = times
	return nil
}

// holdForHuman raises an attention item and clears the claim token so no
// automated outreach fires while a human owns the thread.
func (s *NegotiationService) holdForHuman(ctx context.Context, req *domain.SchedulingRequest, reason, detail string) error {
	if err := repo.ScheduleNextAction(ctx, s.DB, req.ID, "", time.Time{}); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return s.Attention.Raise(ctx, req, reason, detail)
}

// reProposeTimes finds fresh candidate slots (excluding any now known stale),
// replaces the proposal set, sends a follow-up, and re-arms the follow-up
// token. Exhausted attempts hold for a human instead.
func (s *NegotiationService) reProposeTimes(ctx context.Context, req *domain.SchedulingRequest, table grounding.Table, exclude []time.Time) error {
	attempt := req.AttemptCount + 1
	if attempt > s.Cfg.MaxAttempts {
		return s.holdForHuman(ctx, req, domain.AttentionAttemptsExhausted,
			fmt.Sprintf("outreach attempt cap (%d) reached", s.Cfg.MaxAttempts))
	}

	internals, err := repo.InternalEmails(ctx, s.DB, req.ID)
	if err != nil {
		return err
	}
	slots, err := s.Availability.FindSlots(ctx, internals, table, req.DurationMinutes, s.Cfg.ProposeCount, exclude)
	if err != nil {
		return s.holdForHuman(ctx, req, domain.AttentionBookingConflict,
			"availability lookup failed while re-proposing: "+err.Error())
	}
	if len(slots) == 0 {
		return s.holdForHuman(ctx, req, domain.AttentionBookingConflict,
			"no mutually open slot left in the lookahead window")
	}

	if err := repo.ReplaceProposedTimes(ctx, s.DB, req.ID, slots, attempt); err != nil {
		return err
	}
	req.ProposedTimes = slots
	req.CounterProposedTimes = nil
	req.AttemptCount = attempt

	if err := s.sendOutreach(ctx, req, OutreachFollowUp, attempt, slots, domain.ActionFollowUpSent); err != nil {
		return err
	}
	return repo.ScheduleNextAction(ctx, s.DB, req.ID, domain.NextActionSendFollowUp, s.now().Add(s.Cfg.FollowUpDelay))
}

// Cancel moves an open request to cancelled on behalf of actor.
func (s *NegotiationService) Cancel(ctx context.Context, id, actor string) error {
	tr := otel.Tracer("services/NegotiationService")
	ctx, span := tr.Start(ctx, "Cancel",
		trace.WithAttributes(attribute.String("request.id", id)),
	)
	defer span.End()

	req, err := repo.GetRequest(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRequestNotFound
	}
	if err != nil {
		return err
	}
	if req.Terminal() {
		return ErrTerminalState
	}

	err = repo.UpdateStatusCAS(ctx, s.DB, id, domain.OpenStatuses, domain.StatusCancelled, map[string]any{
		"next_action_type": nil,
		"next_action_at":   nil,
	})
	if errors.Is(err, repo.ErrStale) {
		return ErrTerminalState
	}
	if err != nil {
		return err
	}
	transitions.WithLabelValues(domain.StatusCancelled).Inc()

	return repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      id,
		ActionType:     domain.ActionRequestCancelled,
		Actor:          actor,
		PreviousStatus: req.Status,
		NewStatus:      domain.StatusCancelled,
	})
}

// Complete records that a confirmed meeting actually happened, which disarms
// any pending no-show detection.
func (s *NegotiationService) Complete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/NegotiationService")
	ctx, span := tr.Start(ctx, "Complete",
		trace.WithAttributes(attribute.String("request.id", id)),
	)
	defer span.End()

	req, err := repo.GetRequest(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRequestNotFound
	}
	if err != nil {
		return err
	}
	if req.Status != domain.StatusConfirmed {
		return ErrNotConfirmed
	}

	if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      id,
		ActionType:     domain.ActionMeetingCompleted,
		Actor:          domain.ActorUser,
		PreviousStatus: req.Status,
		NewStatus:      req.Status,
	}); err != nil {
		return err
	}
	return repo.ScheduleNextAction(ctx, s.DB, id, "", time.Time{})
}

// sendOutreach composes, delivers, and records one outbound message. A
// replayed composition (attempt already recorded) is a no-op: the message was
// sent before.
// deliverOutreach composes and sends one message without recording it.
// replayed means the attempt was already on the wire and nothing was sent;
// callers skip the audit append in that case.
func (s *NegotiationService) deliverOutreach(ctx context.Context, req *domain.SchedulingRequest, kind string, attempt int, times []time.Time) (Outreach, bool, error) {
	out, err := s.Composer.Compose(ctx, req, kind, attempt, times)
	if err != nil {
		return Outreach{}, false, err
	}
	if out.Replayed {
		return out, true, nil
	}

	var to []string
	for _, a := range req.Attendees {
		if a.Side == domain.SideExternal {
			to = append(to, a.Email)
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.Cfg.SendTimeout)
	_, err = s.Sender.Send(sctx, OutboundMessage{
		ThreadID: req.EmailThreadID,
		To:       to,
		Subject:  out.Subject,
		Body:     out.Body,
	})
	cancel()
	if err != nil {
		return Outreach{}, false, fmt.Errorf("send outreach: %w", err)
	}
	outreachSent.WithLabelValues(kind).Inc()
	return out, false, nil
}

func (s *NegotiationService) sendOutreach(ctx context.Context, req *domain.SchedulingRequest, kind string, attempt int, times []time.Time, actionType string) error {
	out, replayed, err := s.deliverOutreach(ctx, req, kind, attempt, times)
	if err != nil || replayed {
		return err
	}
	return repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      req.ID,
		ActionType:     actionType,
		Actor:          domain.ActorSystem,
		TimesProposed:  times,
		Attempt:        attempt,
		Content:        out.Body,
		SnippetID:      out.SnippetID,
		PreviousStatus: req.Status,
		NewStatus:      req.Status,
	})
}

func (s *NegotiationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func validateNewRequest(req *domain.SchedulingRequest) error {
	if req.Title == "" {
		return ErrEmptyTitle
	}
	if req.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	var organizer, external bool
	for _, a := range req.Attendees {
		if a.Side == domain.SideInternal && a.IsOrganizer {
			organizer = true
		}
		if a.Side == domain.SideExternal {
			external = true
		}
	}
	if !organizer {
		return ErrNoOrganizer
	}
	if !external {
		return ErrNoExternalAttendee
	}
	return nil
}

func attendeeEmails(req *domain.SchedulingRequest) []string {
	out := make([]string, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		out = append(out, a.Email)
	}
	return out
}

func excerpt(msg domain.InboundMessage) string {
	body := msg.BodyPreview
	if body == "" {
		body = msg.Body
	}
	const max = 200
	if runes := []rune(body); len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return body
}
