// Package services – Composer
//
// Outreach composition. Every outbound message on a negotiation is built
// here: the initial proposal, follow-ups on silent threads, and reminders
// before confirmed meetings. Composition is idempotent per (request, attempt):
// if the audit log already holds an outbound action for the attempt, its exact
// content is replayed instead of generating a near-duplicate, so a crash
// between "composed" and "recorded" can never send two different messages for
// one attempt.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
)

// Outreach kinds.
const (
	OutreachInitial  = "initial"
	OutreachFollowUp = "follow_up"
	OutreachReminder = "reminder"
)

// Outreach is one composed outbound message plus bookkeeping for the audit log.
type Outreach struct {
	Subject   string
	Body      string
	SnippetID string
	// Replayed is true when the body came from a previously recorded attempt.
	Replayed bool
}

// Composer builds outreach bodies from request state and the audit log.
type Composer struct {
	DB     *gorm.DB
	Now    Clock
	Locale language.Tag
}

// Compose builds the outbound message of the given kind for an attempt.
// For initial and follow-up messages the attempt number drives idempotence;
// reminders are deduplicated by their audit action instead.
func (c *Composer) Compose(ctx context.Context, req *domain.SchedulingRequest, kind string, attempt int, times []time.Time) (Outreach, error) {
	if kind != OutreachReminder {
		if prior, err := repo.OutboundForAttempt(ctx, c.DB, req.ID, attempt); err == nil {
			return Outreach{
				Subject:   c.subject(req, kind),
				Body:      prior.Content,
				SnippetID: prior.SnippetID,
				Replayed:  true,
			}, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return Outreach{}, err
		}
	}

	contact, err := repo.PrimaryContact(ctx, c.DB, req.ID)
	if err != nil {
		return Outreach{}, fmt.Errorf("composer: primary contact: %w", err)
	}
	organizer, err := repo.Organizer(ctx, c.DB, req.ID)
	if err != nil {
		return Outreach{}, fmt.Errorf("composer: organizer: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", c.firstName(contact.Name))

	switch kind {
	case OutreachInitial:
		fmt.Fprintf(&b, "I'd love to set up a %d-minute %s to talk through %s.\n\n",
			req.DurationMinutes, meetingNoun(req.MeetingType), req.Title)
	case OutreachFollowUp:
		b.WriteString("Just floating this back to the top of your inbox. ")
		fmt.Fprintf(&b, "Still keen to find %d minutes for %s.\n\n", req.DurationMinutes, req.Title)
	case OutreachReminder:
		if req.ScheduledTime != nil {
			fmt.Fprintf(&b, "A quick reminder about our %s tomorrow: %s.\n\n",
				meetingNoun(req.MeetingType), formatSlot(*req.ScheduledTime))
		}
		fmt.Fprintf(&b, "Looking forward to it. If anything has come up, just reply here and we'll find another time.\n\nBest,\n%s\n", organizer.Name)
		return Outreach{Subject: c.subject(req, kind), Body: b.String()}, nil
	default:
		return Outreach{}, fmt.Errorf("composer: unknown outreach kind %q", kind)
	}

	if len(times) > 0 {
		b.WriteString("Would any of these work for you?\n\n")
		for _, t := range times {
			fmt.Fprintf(&b, "  - %s\n", formatSlot(t))
		}
		b.WriteByte('\n')
	}

	if line := seasonalityLine(c.now().Month()); line != "" {
		b.WriteString(line)
		b.WriteString("\n\n")
	}

	var snippetID string
	used, err := repo.UsedSnippetIDs(ctx, c.DB, req.ID)
	if err != nil {
		return Outreach{}, err
	}
	if sn := pickSnippet(used); sn.ID != "" {
		snippetID = sn.ID
		b.WriteString(sn.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("If none of these fit, let me know what does and I'll make it work.\n\n")
	fmt.Fprintf(&b, "Best,\n%s\n", organizer.Name)

	return Outreach{Subject: c.subject(req, kind), Body: b.String(), SnippetID: snippetID}, nil
}

func (c *Composer) subject(req *domain.SchedulingRequest, kind string) string {
	if kind == OutreachReminder {
		return "Reminder: " + req.Title
	}
	return req.Title
}

// firstName extracts and title-cases the contact's first name, falling back
// to "there" when the name is empty.
func (c *Composer) firstName(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return "there"
	}
	loc := c.Locale
	if loc == language.Und {
		loc = language.English
	}
	return cases.Title(loc).String(strings.ToLower(fields[0]))
}

func (c *Composer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// formatSlot renders an instant the way it appears in outreach bodies.
func formatSlot(t time.Time) string {
	return t.Format("Monday, January 2 at 3:04 PM") + " (" + t.Format("MST") + ")"
}

func meetingNoun(meetingType string) string {
	switch meetingType {
	case "demo":
		return "demo"
	case "discovery":
		return "discovery call"
	case "follow_up":
		return "follow-up call"
	default:
		return "call"
	}
}
