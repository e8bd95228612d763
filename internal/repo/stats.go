// Package repo implements the data persistence layer for the scheduling
// domain. This file provides small aggregate/statistics queries consumed by
// the stats endpoint and by dashboard-style clients.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// EngineStats is a point-in-time aggregate snapshot of the engine.
type EngineStats struct {
	ByStatus      map[string]int64 `json:"by_status"`
	TotalRequests int64            `json:"total_requests"`
	TotalNoShows  int64            `json:"total_no_shows"`
	OpenAttention int64            `json:"open_attention_items"`
	DueActions    int64            `json:"due_actions"`
}

// Stats computes the aggregate snapshot with a handful of lightweight
// queries. It is read-only and safe to call from handlers.
func Stats(ctx context.Context, db *gorm.DB) (*EngineStats, error) {
	out := &EngineStats{ByStatus: map[string]int64{}}

	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.N
		out.TotalRequests += r.N
	}

	var noShows struct{ Total int64 }
	if err := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Select("coalesce(sum(no_show_count),0) as total").
		Scan(&noShows).Error; err != nil {
		return nil, err
	}
	out.TotalNoShows = noShows.Total

	if err := db.WithContext(ctx).
		Model(&domain.AttentionItem{}).
		Where("resolved_at IS NULL").
		Count(&out.OpenAttention).Error; err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).
		Model(&domain.SchedulingRequest{}).
		Where("next_action_type IS NOT NULL").
		Count(&out.DueActions).Error; err != nil {
		return nil, err
	}

	return out, nil
}
