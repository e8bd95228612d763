// Package domain defines the core persistence and boundary models for the
// scheduling engine. This file models the structured output of the response
// interpreter: a tagged union validated immediately at the AI boundary so that
// nothing downstream ever consumes free text or optional, half-shaped fields.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reply intents produced by the response interpreter.
const (
	IntentAccept         = "accept"
	IntentDecline        = "decline"
	IntentCounterPropose = "counter_propose"
	IntentQuestion       = "question"
	IntentUnclear        = "unclear"
)

// ValidIntent reports whether s is one of the five recognized intents.
func ValidIntent(s string) bool {
	switch s {
	case IntentAccept, IntentDecline, IntentCounterPropose, IntentQuestion, IntentUnclear:
		return true
	}
	return false
}

// Interpretation is the validated result of classifying one inbound reply.
//
// Shape rules of the tagged union:
//   - SelectedTime is set only when Intent == accept.
//   - CounterProposedTimes is non-empty only when Intent == counter_propose.
//   - Confidence is clamped to [0, 1].
//   - Reasoning is persisted verbatim to the audit log.
type Interpretation struct {
	Intent               string      `json:"intent"`
	SelectedTime         *time.Time  `json:"selected_time,omitempty"`
	CounterProposedTimes []time.Time `json:"counter_proposed_times,omitempty"`
	Sentiment            string      `json:"sentiment,omitempty"`
	Confidence           float64     `json:"confidence"`
	Reasoning            string      `json:"reasoning,omitempty"`
}

// DecodeInterpretation parses raw interpreter output and enforces the tagged
// union shape. Malformed output is rejected here, at the boundary, rather than
// propagated downstream. Unknown JSON fields are an error: a model emitting a
// shape we did not ask for is not trusted.
func DecodeInterpretation(raw []byte) (Interpretation, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	var out Interpretation
	if err := dec.Decode(&out); err != nil {
		return Interpretation{}, fmt.Errorf("interpretation: decode: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Interpretation{}, err
	}
	return out, nil
}

// Validate checks the tagged union invariants and normalizes Confidence.
func (i *Interpretation) Validate() error {
	if !ValidIntent(i.Intent) {
		return fmt.Errorf("interpretation: unknown intent %q", i.Intent)
	}
	if i.Intent != IntentAccept && i.SelectedTime != nil {
		return fmt.Errorf("interpretation: selected_time set for intent %q", i.Intent)
	}
	if i.Intent == IntentAccept && i.SelectedTime == nil {
		return fmt.Errorf("interpretation: accept without selected_time")
	}
	if i.Intent != IntentCounterPropose && len(i.CounterProposedTimes) > 0 {
		return fmt.Errorf("interpretation: counter_proposed_times set for intent %q", i.Intent)
	}
	if i.Intent == IntentCounterPropose && len(i.CounterProposedTimes) == 0 {
		return fmt.Errorf("interpretation: counter_propose without times")
	}
	if i.Confidence < 0 {
		i.Confidence = 0
	}
	if i.Confidence > 1 {
		i.Confidence = 1
	}
	return nil
}

// Downgrade rewrites the interpretation to unclear, preserving the original
// reasoning prefixed with the downgrade cause. Used when a parsed time cannot
// be reconciled with the grounding table, or when confidence is below the
// configured floor: a deliberate hold for human review, not an error.
func (i Interpretation) Downgrade(cause string) Interpretation {
	reason := cause
	if i.Reasoning != "" {
		reason = cause + "; interpreter said: " + i.Reasoning
	}
	return Interpretation{
		Intent:     IntentUnclear,
		Sentiment:  i.Sentiment,
		Confidence: i.Confidence,
		Reasoning:  reason,
	}
}

// InboundMessage is the normalized inbound reply consumed by the engine.
// Provider-specific parsing (Graph, Gmail, IMAP) happens upstream; by the time
// a message reaches this type it is plain data keyed by a stable message ID.
type InboundMessage struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	Body             string    `json:"body"`
	BodyPreview      string    `json:"bodyPreview"`
	FromAddress      string    `json:"from_address"`
	FromName         string    `json:"from_name"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	ConversationID   string    `json:"conversationId"`
}
