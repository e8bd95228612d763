// Package provider holds the HTTP adapters behind the engine's outbound
// ports: free/busy queries, mail delivery into an existing thread, and
// calendar booking. Each adapter speaks a small JSON contract to a configured
// gateway URL; provider-specific details (Graph, Gmail, CalDAV) live behind
// that gateway, outside this module.
//
// Every adapter has a development fallback used when its URL is not
// configured, so the service boots and negotiates end to end without any
// external systems: sends are logged, bookings mint synthetic event ids, and
// availability reports every attendee free.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meridian-crm/go-scheduling-backend/internal/services"
)

// httpPost performs one JSON POST with a bearer token and decodes the
// response into out. Error bodies are truncated, never propagated verbatim.
func httpPost(ctx context.Context, hc *http.Client, url, apiKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: %s status %d", url, resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}

//
// Availability
//

// HTTPAvailability queries a free/busy gateway. The wire contract mirrors the
// calendar provider's getSchedule shape: emails plus a window in, per-attendee
// classified intervals out.
type HTTPAvailability struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

type availabilityRequest struct {
	AttendeeEmails  []string  `json:"attendee_emails"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	IntervalMinutes int       `json:"interval_minutes"`
}

type availabilityResponse struct {
	Schedules []services.AttendeeSchedule `json:"schedules"`
}

// Query implements services.AvailabilityProvider.
func (p *HTTPAvailability) Query(ctx context.Context, emails []string, windowStart, windowEnd time.Time) ([]services.AttendeeSchedule, error) {
	var out availabilityResponse
	err := httpPost(ctx, p.HTTPClient, p.URL, p.APIKey, availabilityRequest{
		AttendeeEmails:  emails,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		IntervalMinutes: 30,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("provider: availability: %w", err)
	}
	return out.Schedules, nil
}

// OpenAvailability is the development fallback: every attendee is free.
type OpenAvailability struct{}

// Query implements services.AvailabilityProvider.
func (OpenAvailability) Query(_ context.Context, emails []string, _, _ time.Time) ([]services.AttendeeSchedule, error) {
	out := make([]services.AttendeeSchedule, 0, len(emails))
	for _, e := range emails {
		out = append(out, services.AttendeeSchedule{Email: e})
	}
	return out, nil
}

//
// Mail delivery
//

// HTTPSender delivers outreach through a mail gateway that replies into an
// existing thread.
type HTTPSender struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

type sendRequest struct {
	ThreadID string   `json:"thread_id"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send implements services.MessageSender.
func (p *HTTPSender) Send(ctx context.Context, msg services.OutboundMessage) (string, error) {
	var out sendResponse
	err := httpPost(ctx, p.HTTPClient, p.URL, p.APIKey, sendRequest{
		ThreadID: msg.ThreadID,
		To:       msg.To,
		Subject:  msg.Subject,
		Body:     msg.Body,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("provider: send: %w", err)
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("provider: send: gateway returned no message id")
	}
	return out.MessageID, nil
}

// LogSender is the development fallback: outreach lands in the log, not an
// inbox.
type LogSender struct{}

// Send implements services.MessageSender.
func (LogSender) Send(_ context.Context, msg services.OutboundMessage) (string, error) {
	id := "dev-" + uuid.NewString()
	log.Info().
		Str("thread_id", msg.ThreadID).
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Str("message_id", id).
		Msg("outbound mail (dev sender, not delivered)")
	return id, nil
}

//
// Calendar booking
//

// HTTPBooker creates calendar events through the booking gateway.
type HTTPBooker struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

type bookRequest struct {
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Attendees       []string  `json:"attendees"`
	IsOnlineMeeting bool      `json:"isOnlineMeeting"`
	Description     string    `json:"description,omitempty"`
}

type bookResponse struct {
	EventID string `json:"event_id"`
	WebLink string `json:"web_link"`
}

// Book implements services.CalendarBooker.
func (p *HTTPBooker) Book(ctx context.Context, br services.BookingRequest) (services.Booking, error) {
	var out bookResponse
	err := httpPost(ctx, p.HTTPClient, p.URL, p.APIKey, bookRequest{
		Title:           br.Title,
		Start:           br.Start,
		End:             br.Start.Add(time.Duration(br.DurationMinutes) * time.Minute),
		Attendees:       br.AttendeeEmails,
		IsOnlineMeeting: true,
		Description:     br.Description,
	}, &out)
	if err != nil {
		return services.Booking{}, fmt.Errorf("provider: book: %w", err)
	}
	if out.EventID == "" {
		return services.Booking{}, fmt.Errorf("provider: book: gateway returned no event id")
	}
	return services.Booking{EventID: out.EventID, WebLink: out.WebLink}, nil
}

// StubBooker is the development fallback: it mints a synthetic event id so
// confirmation flows complete without a calendar behind them.
type StubBooker struct{}

// Book implements services.CalendarBooker.
func (StubBooker) Book(_ context.Context, br services.BookingRequest) (services.Booking, error) {
	id := "dev-evt-" + uuid.NewString()
	log.Info().
		Str("title", br.Title).
		Time("start", br.Start).
		Str("event_id", id).
		Msg("calendar booking (dev booker, no event created)")
	return services.Booking{EventID: id}, nil
}

var (
	_ services.AvailabilityProvider = (*HTTPAvailability)(nil)
	_ services.AvailabilityProvider = OpenAvailability{}
	_ services.MessageSender        = (*HTTPSender)(nil)
	_ services.MessageSender        = LogSender{}
	_ services.CalendarBooker       = (*HTTPBooker)(nil)
	_ services.CalendarBooker       = StubBooker{}
)
