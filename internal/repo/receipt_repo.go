// Package repo implements the data persistence layer for the scheduling
// domain. This file provides repository helpers for the InboundReceipt model
// used to make reply processing idempotent by message ID.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// message ID: the reply was processed before.
var ErrDuplicate = errors.New("duplicate")

// CreateReceipt inserts a receipt for messageID and returns ErrDuplicate on
// unique violation. Callers create the receipt before processing so that a
// concurrent duplicate delivery loses the race at the database.
func CreateReceipt(ctx context.Context, db *gorm.DB, messageID, requestID string, ttl time.Duration) (*domain.InboundReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.InboundReceipt{
		ID:        uuid.NewString(),
		MessageID: messageID,
		RequestID: requestID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// DeleteReceipt removes a receipt so the same message ID can be reprocessed.
// Used when processing fails transiently after the receipt was taken.
func DeleteReceipt(ctx context.Context, db *gorm.DB, messageID string) error {
	return db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&domain.InboundReceipt{}).Error
}

// HasReceipt reports whether an unexpired receipt exists for messageID.
// Used by the HTTP idempotency middleware to flag replayed deliveries.
func HasReceipt(ctx context.Context, db *gorm.DB, messageID string, now time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.InboundReceipt{}).
		Where("message_id = ? AND expires_at > ?", messageID, now).
		Count(&n).Error
	return n > 0, err
}

// PurgeExpiredReceipts deletes receipts past their TTL. Called from the
// automation sweep; the table stays small without a dedicated janitor.
func PurgeExpiredReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.InboundReceipt{})
	return res.RowsAffected, res.Error
}
