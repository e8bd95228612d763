// Package repo implements the data persistence layer for the scheduling
// domain. This file provides repository functions for the append-only
// SchedulingAction audit log and for AttentionItem rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// AppendAction inserts one audit action. The log is append-only; there are
// deliberately no update or delete functions for scheduling_actions.
func AppendAction(ctx context.Context, db *gorm.DB, a *domain.SchedulingAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(a).Error
}

// ListActions returns the full audit timeline of a request, oldest first.
func ListActions(ctx context.Context, db *gorm.DB, requestID string) ([]domain.SchedulingAction, error) {
	var out []domain.SchedulingAction
	err := db.WithContext(ctx).
		Where("scheduling_request_id = ?", requestID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// OutboundForAttempt returns the outbound message action recorded for a given
// (request, attempt) pair, or ErrNotFound. The composer uses this to make
// composition idempotent: an attempt already sent is replayed verbatim.
func OutboundForAttempt(ctx context.Context, db *gorm.DB, requestID string, attempt int) (*domain.SchedulingAction, error) {
	var a domain.SchedulingAction
	err := db.WithContext(ctx).
		Where("scheduling_request_id = ? AND attempt = ? AND action_type IN ?",
			requestID, attempt,
			[]string{domain.ActionEmailSent, domain.ActionFollowUpSent, domain.ActionReminderSent}).
		Order("created_at asc").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UsedSnippetIDs returns the social-proof snippet IDs already sent on this
// request, so enrichment never repeats itself within one negotiation.
func UsedSnippetIDs(ctx context.Context, db *gorm.DB, requestID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.SchedulingAction{}).
		Where("scheduling_request_id = ? AND snippet_id <> ''", requestID).
		Pluck("snippet_id", &ids).Error
	return ids, err
}

// HasAction reports whether an action of the given type exists for a request.
// No-show detection uses this to check for a recorded completion.
func HasAction(ctx context.Context, db *gorm.DB, requestID, actionType string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.SchedulingAction{}).
		Where("scheduling_request_id = ? AND action_type = ?", requestID, actionType).
		Count(&n).Error
	return n > 0, err
}

// CreateAttentionItem persists a needs-a-human marker.
func CreateAttentionItem(ctx context.Context, db *gorm.DB, item *domain.AttentionItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(item).Error
}

// ListOpenAttentionItems returns unresolved attention items, oldest first.
func ListOpenAttentionItems(ctx context.Context, db *gorm.DB, limit int) ([]domain.AttentionItem, error) {
	var out []domain.AttentionItem
	q := db.WithContext(ctx).Where("resolved_at IS NULL").Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ResolveAttentionItem stamps resolved_at on an open item. Resolving an
// already-resolved or missing item returns ErrNotFound.
func ResolveAttentionItem(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.AttentionItem{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
