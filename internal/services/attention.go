// Package services – AttentionService
//
// Attention items are the engine's "stop automating, get a human" signal:
// prospect questions, unclear replies, repeated no-shows, and integrity
// problems all land here. Items are persisted first; notification is
// best-effort and never fails the operation that raised the item.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
)

// Notifier pushes a raised attention item to a human channel (Slack in
// production). Implementations must be safe for concurrent use.
type Notifier interface {
	NotifyAttention(ctx context.Context, item domain.AttentionItem, req *domain.SchedulingRequest) error
}

// AttentionService persists attention items and fans them out to the notifier.
type AttentionService struct {
	DB       *gorm.DB
	Notifier Notifier
	Now      Clock
}

// Raise persists an attention item for the request, records the audit action,
// and notifies. Notification failure is logged and swallowed: the persisted
// item is the source of truth, the ping is a convenience.
func (s *AttentionService) Raise(ctx context.Context, req *domain.SchedulingRequest, reason, excerpt string) error {
	item := &domain.AttentionItem{
		RequestID: req.ID,
		Reason:    reason,
		Excerpt:   excerpt,
	}
	if err := repo.CreateAttentionItem(ctx, s.DB, item); err != nil {
		return err
	}
	if err := repo.AppendAction(ctx, s.DB, &domain.SchedulingAction{
		RequestID:      req.ID,
		ActionType:     domain.ActionAttentionRaised,
		Actor:          domain.ActorSystem,
		AIReasoning:    reason + ": " + excerpt,
		PreviousStatus: req.Status,
		NewStatus:      req.Status,
	}); err != nil {
		return err
	}
	attentionRaised.WithLabelValues(reason).Inc()

	if s.Notifier != nil {
		if err := s.Notifier.NotifyAttention(ctx, *item, req); err != nil {
			log.Warn().Err(err).
				Str("request_id", req.ID).
				Str("reason", reason).
				Msg("attention notification failed")
		}
	}
	return nil
}

// ListOpen returns unresolved attention items, oldest first.
func (s *AttentionService) ListOpen(ctx context.Context, limit int) ([]domain.AttentionItem, error) {
	return repo.ListOpenAttentionItems(ctx, s.DB, limit)
}

// Resolve marks an item handled. Resolving twice returns ErrRequestNotFound
// mapped from the repository's not-found.
func (s *AttentionService) Resolve(ctx context.Context, id string) error {
	err := repo.ResolveAttentionItem(ctx, s.DB, id, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRequestNotFound
	}
	return err
}

func (s *AttentionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
