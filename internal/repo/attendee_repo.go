// Package repo implements the data persistence layer for the scheduling
// domain. This file provides lookups over scheduling_attendees; attendee rows
// are created with their request (see CreateRequest) and never re-parented.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// ListAttendees returns all attendees of a request.
func ListAttendees(ctx context.Context, db *gorm.DB, requestID string) ([]domain.SchedulingAttendee, error) {
	var out []domain.SchedulingAttendee
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// InternalEmails returns the email addresses of the internal attendees, the
// set whose calendars gate confirmation.
func InternalEmails(ctx context.Context, db *gorm.DB, requestID string) ([]string, error) {
	var emails []string
	err := db.WithContext(ctx).
		Model(&domain.SchedulingAttendee{}).
		Where("request_id = ? AND side = ?", requestID, domain.SideInternal).
		Pluck("email", &emails).Error
	return emails, err
}

// Organizer returns the internal attendee flagged is_organizer. Exactly one
// exists per well-formed request; ErrNotFound reveals an integrity problem.
func Organizer(ctx context.Context, db *gorm.DB, requestID string) (*domain.SchedulingAttendee, error) {
	var a domain.SchedulingAttendee
	err := db.WithContext(ctx).
		Where("request_id = ? AND side = ? AND is_organizer = ?", requestID, domain.SideInternal, true).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// PrimaryContact returns the external attendee flagged is_primary_contact,
// falling back to the first external attendee when none is flagged.
func PrimaryContact(ctx context.Context, db *gorm.DB, requestID string) (*domain.SchedulingAttendee, error) {
	var a domain.SchedulingAttendee
	err := db.WithContext(ctx).
		Where("request_id = ? AND side = ?", requestID, domain.SideExternal).
		Order("is_primary_contact desc, created_at asc").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}
