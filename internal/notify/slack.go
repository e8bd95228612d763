// Package notify pushes attention items to the channel a human is actually
// watching. The engine treats the persisted AttentionItem as the source of
// truth; this package is the best-effort ping on top of it. Slack is the only
// adapter today.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts attention items into one Slack channel. A notifier
// built without a bot token is disabled: Notify calls become no-ops, so the
// engine runs unchanged in environments without Slack.
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a SlackNotifier.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token; empty disables the notifier
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a SlackNotifier.
func NewSlack(opts SlackOpts) *SlackNotifier {
	n := &SlackNotifier{channelID: opts.ChannelID, client: opts.Client}
	if n.client == nil && opts.BotToken != "" {
		n.client = slackapi.New(opts.BotToken)
	}
	return n
}

// Enabled reports whether the notifier will actually post.
func (n *SlackNotifier) Enabled() bool {
	return n.client != nil && n.channelID != ""
}

// NotifyAttention posts one attention item as a Block Kit attachment.
func (n *SlackNotifier) NotifyAttention(ctx context.Context, item domain.AttentionItem, req *domain.SchedulingRequest) error {
	if !n.Enabled() {
		return nil
	}

	att := slackapi.Attachment{
		Title:    fmt.Sprintf("Scheduling needs attention: %s", req.Title),
		Text:     item.Excerpt,
		Color:    colorFor(item.Reason),
		Fallback: req.Title,
		Fields: []slackapi.AttachmentField{
			{Title: "Reason", Value: item.Reason, Short: true},
			{Title: "Status", Value: req.Status, Short: true},
			{Title: "Request", Value: req.ID, Short: false},
		},
	}

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := n.client.PostMessageContext(ctx, n.channelID,
			slackapi.MsgOptionAttachments(att))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func colorFor(reason string) string {
	switch reason {
	case domain.AttentionNoShowEscalated, domain.AttentionDataIntegrity:
		return "danger"
	case domain.AttentionBookingConflict, domain.AttentionAttemptsExhausted:
		return "warning"
	}
	return "#439FE0"
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit
// errors. It respects context cancellation and the RetryAfter duration from
// Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
