// Package repo implements the data persistence layer for the scheduling
// domain. This file provides repository functions for the SchedulingRequest
// aggregate.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and the compare-and-set primitives the state machine builds on.
//
// Error semantics:
//   - Missing rows return gorm.ErrRecordNotFound (exported here as ErrNotFound).
//   - Lost CAS races (status changed underneath, claim token already taken)
//     return ErrStale / ErrNoClaim so callers can distinguish "gone" from
//     "someone else got there first".
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStale is returned when a compare-and-set on status matched no rows:
// the request changed state (or was cancelled) since it was read.
var ErrStale = errors.New("request status changed concurrently")

// ErrNoClaim is returned when a claim-token take matched no rows: another
// sweep already claimed and cleared the due action.
var ErrNoClaim = errors.New("next action already claimed")

// CreateRequest inserts a new SchedulingRequest and its attendees in one
// transaction. The caller provides a fully populated aggregate; IDs are
// generated here, status defaults to negotiating when unset.
func CreateRequest(ctx context.Context, db *gorm.DB, r *domain.SchedulingRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.StatusNegotiating
	}
	r.CreatedAt = time.Now().UTC()
	for i := range r.Attendees {
		if r.Attendees[i].ID == "" {
			r.Attendees[i].ID = uuid.NewString()
		}
		r.Attendees[i].RequestID = r.ID
	}
	return db.WithContext(ctx).Create(r).Error
}

// GetRequest fetches a request by ID with its attendees preloaded.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.SchedulingRequest, error) {
	var r domain.SchedulingRequest
	err := db.WithContext(ctx).Preload("Attendees").First(&r, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRequestByThread fetches the request owning an email thread. Inbound
// replies are routed by conversation ID, so a missing row here is a
// data-integrity condition, not a user error.
func GetRequestByThread(ctx context.Context, db *gorm.DB, threadID string) (*domain.SchedulingRequest, error) {
	var r domain.SchedulingRequest
	err := db.WithContext(ctx).Preload("Attendees").First(&r, "email_thread_id = ?", threadID).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRequests returns the total number of requests, optionally filtered by status.
func CountRequests(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.SchedulingRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListRequestsPage returns a page of requests, newest first, optionally
// filtered by status.
func ListRequestsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.SchedulingRequest, error) {
	q := db.WithContext(ctx).Preload("Attendees").Order("created_at desc").Offset(offset).Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.SchedulingRequest
	err := q.Find(&out).Error
	return out, err
}

// ListDue returns up to limit requests whose claim token is due at now,
// oldest due first. The rows are candidates only; each must still be claimed
// via ClaimNextAction before handling.
func ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.SchedulingRequest, error) {
	var out []domain.SchedulingRequest
	err := db.WithContext(ctx).
		Where("next_action_type IS NOT NULL AND next_action_at <= ?", now).
		Order("next_action_at asc").
		Limit(limit).
		Preload("Attendees").
		Find(&out).Error
	return out, err
}

// ClaimNextAction atomically takes the claim token: it clears
// next_action_type/next_action_at only if they still hold the values the
// sweep observed. ErrNoClaim means another invocation processed this action
// first; the caller must treat that as a no-op, not a failure.
func ClaimNextAction(ctx context.Context, db *gorm.DB, id, actionType string, dueAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Where("id = ? AND next_action_type = ? AND next_action_at = ?", id, actionType, dueAt).
		Updates(map[string]any{"next_action_type": nil, "next_action_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoClaim
	}
	return nil
}

// ScheduleNextAction sets the claim token. Passing an empty actionType clears it.
func ScheduleNextAction(ctx context.Context, db *gorm.DB, id, actionType string, at time.Time) error {
	vals := map[string]any{"next_action_type": nil, "next_action_at": nil}
	if actionType != "" {
		vals["next_action_type"] = actionType
		vals["next_action_at"] = at.UTC()
	}
	res := db.WithContext(ctx).Model(&domain.SchedulingRequest{}).Where("id = ?", id).Updates(vals)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusCAS transitions status from one of fromStatuses to toStatus,
// applying extra column updates in the same statement. ErrStale is returned
// when no row matched, meaning the status moved concurrently. This is the
// only write path that mutates status.
func UpdateStatusCAS(ctx context.Context, db *gorm.DB, id string, fromStatuses []string, toStatus string, extra map[string]any) error {
	vals := map[string]any{"status": toStatus}
	for k, v := range extra {
		vals[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(vals)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// ConfirmRequest performs the confirmation transition: status moves from an
// open state to confirmed, scheduled_time and calendar_event_id are set, and
// the claim token is replaced with the post-confirmation follow-through
// (reminder or no-show detection) in the same statement.
func ConfirmRequest(ctx context.Context, db *gorm.DB, id string, scheduled time.Time, eventID, nextActionType string, nextActionAt time.Time) error {
	return UpdateStatusCAS(ctx, db, id, domain.OpenStatuses, domain.StatusConfirmed, map[string]any{
		"scheduled_time":    scheduled.UTC(),
		"calendar_event_id": eventID,
		"next_action_type":  nextActionType,
		"next_action_at":    nextActionAt.UTC(),
	})
}

// SetCounterProposals stores the prospect's counter-proposed times and arms
// the review_counter_proposal claim token for the next sweep.
func SetCounterProposals(ctx context.Context, db *gorm.DB, id string, times domain.TimeList, reviewAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Where("id = ? AND status IN ?", id, domain.OpenStatuses).
		Updates(map[string]any{
			"counter_proposed_times": times,
			"next_action_type":       domain.NextActionReviewCounterProposal,
			"next_action_at":         reviewAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// ReplaceProposedTimes overwrites proposed_times, clears counter proposals,
// and bumps the attempt counter. Used by the re-negotiation and follow-up
// paths after a fresh set of candidate times has been sent.
func ReplaceProposedTimes(ctx context.Context, db *gorm.DB, id string, times domain.TimeList, attempt int) error {
	res := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"proposed_times":         times,
			"counter_proposed_times": nil,
			"attempt_count":          attempt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordNoShow increments no_show_count and returns the new value. The
// paused flag is set or cleared in the same statement. The write only lands
// while the request is still confirmed; ErrStale means the status moved
// concurrently and no counter was touched.
func RecordNoShow(ctx context.Context, db *gorm.DB, id string, paused bool) (int, error) {
	res := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Where("id = ? AND status = ?", id, domain.StatusConfirmed).
		Updates(map[string]any{
			"no_show_count": gorm.Expr("no_show_count + 1"),
			"paused":        paused,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrStale
	}
	var r domain.SchedulingRequest
	if err := db.WithContext(ctx).Select("no_show_count").First(&r, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return r.NoShowCount, nil
}
