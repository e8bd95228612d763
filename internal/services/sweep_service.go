// Package services – SweepService
//
// The automation sweep. Each run lists requests whose claim token is due,
// claims each token with a compare-and-set, and dispatches the claimed action:
// reminders, follow-ups on silent threads, counter-proposal review, and
// no-show detection with its escalation ladder. Claiming before handling makes
// concurrent or overlapping sweeps safe: a lost claim is a no-op, never a
// duplicate email.
//
// Failures are isolated per request: one broken negotiation never blocks the
// rest of the batch.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/meridian-crm/go-scheduling-backend/internal/config"
	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/grounding"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
)

// SweepService drives the due-action queue. It delegates outreach and booking
// to the negotiation engine so both paths share one implementation.
type SweepService struct {
	DB     *gorm.DB
	Engine *NegotiationService
	Cfg    config.SchedulingConfig
	Now    Clock
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Due            int   `json:"due"`
	Claimed        int   `json:"claimed"`
	Handled        int   `json:"handled"`
	Skipped        int   `json:"skipped"`
	Failed         int   `json:"failed"`
	ReceiptsPurged int64 `json:"receipts_purged"`
}

// Run executes one sweep: purge expired receipts, list due requests, claim
// and dispatch each. The returned error covers only the listing itself;
// per-request failures are counted, logged, and recorded on the audit log.
func (s *SweepService) Run(ctx context.Context) (SweepReport, error) {
	tr := otel.Tracer("services/SweepService")
	ctx, span := tr.Start(ctx, "Run")
	defer span.End()

	now := s.now()
	var rep SweepReport

	purged, err := repo.PurgeExpiredReceipts(ctx, s.DB, now)
	if err != nil {
		log.Warn().Err(err).Msg("receipt purge failed")
	} else {
		rep.ReceiptsPurged = purged
	}

	due, err := repo.ListDue(ctx, s.DB, now, s.Cfg.SweepBatchSize)
	if err != nil {
		return rep, err
	}
	rep.Due = len(due)
	span.SetAttributes(attribute.Int("sweep.due", len(due)))

	for i := range due {
		req := &due[i]
		if req.NextActionType == nil || req.NextActionAt == nil {
			continue
		}
		action := *req.NextActionType

		if err := repo.ClaimNextAction(ctx, s.DB, req.ID, action, *req.NextActionAt); err != nil {
			if errors.Is(err, repo.ErrNoClaim) {
				rep.Skipped++
				sweepActions.WithLabelValues(action, "lost_claim").Inc()
				continue
			}
			rep.Failed++
			log.Error().Err(err).Str("request_id", req.ID).Str("action", action).Msg("claim failed")
			continue
		}
		rep.Claimed++
		req.NextActionType, req.NextActionAt = nil, nil

		if err := s.dispatch(ctx, req, action, now); err != nil {
			rep.Failed++
			sweepActions.WithLabelValues(action, "error").Inc()
			log.Error().Err(err).Str("request_id", req.ID).Str("action", action).Msg("due action failed")
			_ = repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
				RequestID:      req.ID,
				ActionType:     domain.ActionErrorLogged,
				Actor:          domain.ActorSystem,
				AIReasoning:    fmt.Sprintf("%s failed: %v", action, err),
				PreviousStatus: req.Status,
				NewStatus:      req.Status,
			})
			continue
		}
		rep.Handled++
		sweepActions.WithLabelValues(action, "ok").Inc()
	}

	log.Info().
		Int("due", rep.Due).
		Int("handled", rep.Handled).
		Int("skipped", rep.Skipped).
		Int("failed", rep.Failed).
		Int64("receipts_purged", rep.ReceiptsPurged).
		Msg("sweep complete")
	return rep, nil
}

func (s *SweepService) dispatch(ctx context.Context, req *domain.SchedulingRequest, action string, now time.Time) error {
	switch action {
	case domain.NextActionSendReminder:
		return s.handleSendReminder(ctx, req)
	case domain.NextActionSendFollowUp:
		return s.handleFollowUp(ctx, req, now)
	case domain.NextActionReviewCounterProposal:
		return s.handleReviewCounter(ctx, req, now)
	case domain.NextActionDetectNoShow:
		return s.handleNoShow(ctx, req, now)
	}
	return fmt.Errorf("unknown due action %q", action)
}

// handleSendReminder mails the pre-meeting reminder and chains no-show
// detection behind the scheduled time. A token surviving a status change is
// simply dropped.
func (s *SweepService) handleSendReminder(ctx context.Context, req *domain.SchedulingRequest) error {
	if req.Status != domain.StatusConfirmed || req.ScheduledTime == nil {
		return nil
	}

	sent, err := repo.HasAction(ctx, s.DB, req.ID, domain.ActionReminderSent)
	if err != nil {
		return err
	}
	if !sent {
		if err := s.Engine.sendOutreach(ctx, req, OutreachReminder, 0, nil, domain.ActionReminderSent); err != nil {
			return err
		}
	}
	return repo.ScheduleNextAction(ctx, s.DB, req.ID, domain.NextActionDetectNoShow,
		req.ScheduledTime.Add(s.Cfg.NoShowGrace))
}

// handleFollowUp re-proposes times on a silent thread. Paused requests are
// unpaused first: the pause window has elapsed by the time the token fires.
// A confirmed-but-paused request (third no-show) is re-opened here, so the
// pause rung itself never changes status.
func (s *SweepService) handleFollowUp(ctx context.Context, req *domain.SchedulingRequest, now time.Time) error {
	if req.Status == domain.StatusConfirmed && req.Paused {
		err := repo.UpdateStatusCAS(ctx, s.DB, req.ID,
			[]string{domain.StatusConfirmed}, domain.StatusNegotiating, map[string]any{
				"paused":            false,
				"scheduled_time":    nil,
				"calendar_event_id": nil,
			})
		if errors.Is(err, repo.ErrStale) {
			return nil
		}
		if err != nil {
			return err
		}
		transitions.WithLabelValues(domain.StatusNegotiating).Inc()
		if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
			RequestID:      req.ID,
			ActionType:     domain.ActionReopened,
			Actor:          domain.ActorSystem,
			PreviousStatus: domain.StatusConfirmed,
			NewStatus:      domain.StatusNegotiating,
		}); err != nil {
			return err
		}
		req.Status = domain.StatusNegotiating
		req.Paused = false
		req.ScheduledTime = nil
		req.CalendarEventID = nil
	}
	if !req.Open() {
		return nil
	}
	if req.Paused {
		if err := s.DB.WithContext(ctx).
			Model(&domain.SchedulingRequest{}).
			Where("id = ?", req.ID).
			Update("paused", false).Error; err != nil {
			return err
		}
		req.Paused = false
	}
	table := grounding.Build(now, s.Cfg.LookaheadDays)
	return s.Engine.reProposeTimes(ctx, req, table, nil)
}

// handleReviewCounter checks the prospect's counter-proposed times against
// internal calendars and books the first open one; when none is open, fresh
// times are proposed instead.
func (s *SweepService) handleReviewCounter(ctx context.Context, req *domain.SchedulingRequest, now time.Time) error {
	if !req.Open() {
		return nil
	}
	table := grounding.Build(now, s.Cfg.LookaheadDays)
	if len(req.CounterProposedTimes) == 0 {
		return s.Engine.reProposeTimes(ctx, req, table, nil)
	}

	internals, err := repo.InternalEmails(ctx, s.DB, req.ID)
	if err != nil {
		return err
	}
	for _, t := range req.CounterProposedTimes {
		if !t.After(now) {
			continue
		}
		ok, cerr := s.Engine.Availability.CheckSlot(ctx, internals, t, req.DurationMinutes)
		if cerr != nil {
			// Transient provider trouble: retry the review shortly rather
			// than burning an attempt or paging a human.
			return repo.ScheduleNextAction(ctx, s.DB, req.ID,
				domain.NextActionReviewCounterProposal, now.Add(15*time.Minute))
		}
		if ok {
			return s.Engine.bookAndConfirm(ctx, req, t)
		}
	}
	return s.Engine.reProposeTimes(ctx, req, table, req.CounterProposedTimes)
}

// handleNoShow applies the escalation ladder to a confirmed meeting whose
// grace period elapsed without a recorded completion.
func (s *SweepService) handleNoShow(ctx context.Context, req *domain.SchedulingRequest, now time.Time) error {
	if req.Status != domain.StatusConfirmed || req.ScheduledTime == nil {
		return nil
	}
	completed, err := repo.HasAction(ctx, s.DB, req.ID, domain.ActionMeetingCompleted)
	if err != nil {
		return err
	}
	if completed {
		return nil
	}

	count := req.NoShowCount + 1
	pause := count >= s.Cfg.PauseAt && count < s.Cfg.CancelAt
	if _, err := repo.RecordNoShow(ctx, s.DB, req.ID, pause); err != nil {
		if errors.Is(err, repo.ErrStale) {
			// Status moved since ListDue (user cancel, completion): the row
			// we hold is stale, so drop the token without side effects.
			return nil
		}
		return err
	}
	req.NoShowCount = count
	req.Paused = pause
	noShows.Inc()

	switch {
	case count >= s.Cfg.CancelAt:
		err := repo.UpdateStatusCAS(ctx, s.DB, req.ID,
			[]string{domain.StatusConfirmed}, domain.StatusCancelled, map[string]any{
				"next_action_type": nil,
				"next_action_at":   nil,
			})
		if errors.Is(err, repo.ErrStale) {
			return nil
		}
		if err != nil {
			return err
		}
		transitions.WithLabelValues(domain.StatusCancelled).Inc()
		if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
			RequestID:      req.ID,
			ActionType:     domain.ActionNoShowDetected,
			Actor:          domain.ActorSystem,
			PreviousStatus: domain.StatusConfirmed,
			NewStatus:      domain.StatusCancelled,
		}); err != nil {
			return err
		}
		req.Status = domain.StatusCancelled
		return s.Engine.Attention.Raise(ctx, req, domain.AttentionNoShowEscalated,
			fmt.Sprintf("cancelled after %d no-shows", count))

	case count >= s.Cfg.PauseAt:
		// Third rung: outreach pauses but the request stays confirmed. The
		// follow-up token re-opens the negotiation when the pause elapses.
		if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
			RequestID:      req.ID,
			ActionType:     domain.ActionNoShowDetected,
			Actor:          domain.ActorSystem,
			PreviousStatus: domain.StatusConfirmed,
			NewStatus:      domain.StatusConfirmed,
		}); err != nil {
			return err
		}
		return repo.ScheduleNextAction(ctx, s.DB, req.ID,
			domain.NextActionSendFollowUp, now.Add(s.Cfg.PauseDuration))
	}

	// First and second rung: the meeting did not happen, re-open.
	err = repo.UpdateStatusCAS(ctx, s.DB, req.ID,
		[]string{domain.StatusConfirmed}, domain.StatusNegotiating, map[string]any{
			"scheduled_time":    nil,
			"calendar_event_id": nil,
			"next_action_type":  nil,
			"next_action_at":    nil,
		})
	if errors.Is(err, repo.ErrStale) {
		return nil
	}
	if err != nil {
		return err
	}
	transitions.WithLabelValues(domain.StatusNegotiating).Inc()
	if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      req.ID,
		ActionType:     domain.ActionNoShowDetected,
		Actor:          domain.ActorSystem,
		PreviousStatus: domain.StatusConfirmed,
		NewStatus:      domain.StatusNegotiating,
	}); err != nil {
		return err
	}
	req.Status = domain.StatusNegotiating
	req.ScheduledTime = nil
	req.CalendarEventID = nil

	if count >= s.Cfg.EscalateAt {
		return s.Engine.Attention.Raise(ctx, req, domain.AttentionNoShowEscalated,
			fmt.Sprintf("%d no-shows; automated outreach held for review", count))
	}
	return repo.ScheduleNextAction(ctx, s.DB, req.ID,
		domain.NextActionSendFollowUp, now.Add(s.Cfg.ReengageDelay))
}

func (s *SweepService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
