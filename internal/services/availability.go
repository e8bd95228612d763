// Package services – AvailabilityService
//
// Multi-party availability checking over a pluggable calendar provider. The
// engine only ever gates on internal calendars: we can see our own people's
// schedules, never the prospect's. Classification is deliberately
// conservative: an interval the provider cannot explain ("unknown", outage,
// timeout) counts as unavailable, because double-booking a confirmed meeting
// costs more than proposing a different slot.
package services

import (
	"context"
	"sort"
	"time"

	"github.com/meridian-crm/go-scheduling-backend/internal/config"
	"github.com/meridian-crm/go-scheduling-backend/internal/grounding"
)

// Free/busy interval statuses as reported by calendar providers.
const (
	BusyStatusFree             = "free"
	BusyStatusTentative        = "tentative"
	BusyStatusBusy             = "busy"
	BusyStatusOOF              = "oof"
	BusyStatusWorkingElsewhere = "working_elsewhere"
	BusyStatusUnknown          = "unknown"
)

// Interval is one classified stretch of an attendee's calendar.
type Interval struct {
	Start  time.Time
	End    time.Time
	Status string
}

// AttendeeSchedule is one attendee's classified calendar over the query window.
type AttendeeSchedule struct {
	Email     string
	Intervals []Interval
}

// AvailabilityProvider queries free/busy data for a set of calendars.
// Implementations must honor ctx; the service wraps calls with a timeout and
// treats expiry as "unknown", not as a hard failure.
type AvailabilityProvider interface {
	Query(ctx context.Context, emails []string, windowStart, windowEnd time.Time) ([]AttendeeSchedule, error)
}

// AvailabilityService answers "is this slot open for everyone" and "find me
// mutually open slots" over the configured provider.
type AvailabilityService struct {
	Provider AvailabilityProvider
	Timeout  time.Duration

	// Business-hours bounds for slot generation, in UTC hours.
	BusinessStartHour int // default 9
	BusinessEndHour   int // default 17
	SlotStepMinutes   int // default 30

	// Blackouts are recurring date ranges (holiday shutdowns, year-end
	// freezes) that slot generation never proposes into.
	Blackouts []config.BlackoutRange
}

// blocking reports whether an interval status makes the attendee unavailable.
// Tentative and working-elsewhere commitments do not block a meeting.
func blocking(status string) bool {
	switch status {
	case BusyStatusFree, BusyStatusTentative, BusyStatusWorkingElsewhere:
		return false
	}
	return true
}

// overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// CheckSlot reports whether every listed calendar is open for the full
// duration starting at start. A provider error or timeout yields an error;
// the caller decides whether to hold for a human or retry.
func (s *AvailabilityService) CheckSlot(ctx context.Context, emails []string, start time.Time, durationMinutes int) (bool, error) {
	if len(emails) == 0 {
		return true, nil
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	schedules, err := s.query(ctx, emails, start, end)
	if err != nil {
		return false, err
	}
	for _, sched := range schedules {
		for _, iv := range sched.Intervals {
			if blocking(iv.Status) && overlaps(start, end, iv.Start, iv.End) {
				return false, nil
			}
		}
	}
	return true, nil
}

// FindSlots returns up to count instants inside the grounding window at which
// every listed calendar is open for durationMinutes. Slots fall on a business
// hours grid, weekdays only, earliest first; blackout dates are never
// proposed. Instants in exclude are skipped.
func (s *AvailabilityService) FindSlots(ctx context.Context, emails []string, table grounding.Table, durationMinutes, count int, exclude []time.Time) ([]time.Time, error) {
	if count <= 0 || len(table.Days) == 0 {
		return nil, nil
	}
	startHour, endHour, step := s.grid()

	windowStart := table.Days[0].Date
	windowEnd := table.Days[len(table.Days)-1].Date.Add(24 * time.Hour)

	var schedules []AttendeeSchedule
	if len(emails) > 0 {
		var err error
		schedules, err = s.query(ctx, emails, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
	}

	skip := func(t time.Time) bool {
		for _, x := range exclude {
			if x.Equal(t) {
				return true
			}
		}
		return false
	}

	dur := time.Duration(durationMinutes) * time.Minute
	out := make([]time.Time, 0, count)
	for _, day := range table.Days {
		if day.Weekday == time.Saturday || day.Weekday == time.Sunday {
			continue
		}
		if s.blackedOut(day.Date) {
			continue
		}
		for m := startHour * 60; m+durationMinutes <= endHour*60; m += step {
			slot := day.Date.Add(time.Duration(m) * time.Minute)
			if skip(slot) || !s.open(schedules, slot, slot.Add(dur)) {
				continue
			}
			out = append(out, slot)
			if len(out) == count {
				sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
				return out, nil
			}
			break // at most one slot per day keeps proposals spread out
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// blackedOut reports whether the date falls inside any configured blackout.
func (s *AvailabilityService) blackedOut(t time.Time) bool {
	for _, b := range s.Blackouts {
		if b.Contains(t) {
			return true
		}
	}
	return false
}

// open reports whether no schedule blocks [start,end).
func (s *AvailabilityService) open(schedules []AttendeeSchedule, start, end time.Time) bool {
	for _, sched := range schedules {
		for _, iv := range sched.Intervals {
			if blocking(iv.Status) && overlaps(start, end, iv.Start, iv.End) {
				return false
			}
		}
	}
	return true
}

// query wraps the provider call with the configured timeout.
func (s *AvailabilityService) query(ctx context.Context, emails []string, start, end time.Time) ([]AttendeeSchedule, error) {
	if s.Provider == nil {
		return nil, nil
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Provider.Query(qctx, emails, start, end)
}

func (s *AvailabilityService) grid() (startHour, endHour, stepMinutes int) {
	startHour, endHour, stepMinutes = s.BusinessStartHour, s.BusinessEndHour, s.SlotStepMinutes
	if startHour <= 0 {
		startHour = 9
	}
	if endHour <= startHour {
		endHour = 17
	}
	if stepMinutes <= 0 {
		stepMinutes = 30
	}
	return
}
