package interpret

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// Heuristic is the deterministic fallback interpreter: lexicon scoring for
// the intent plus regex time extraction grounded against the calendar table.
// It runs when no AI endpoint is configured or the call times out, and it is
// the interpreter of choice in tests. Its confidence is intentionally modest;
// genuinely ambiguous text lands in the unclear safety valve rather than
// being guessed at.
type Heuristic struct {
	lex *lexicon

	// MinScore is the lexicon score below which the reply is unclear.
	// Zero means the default of 0.12.
	MinScore float64
}

// NewHeuristic builds the fallback interpreter.
func NewHeuristic() *Heuristic {
	return &Heuristic{lex: newLexicon()}
}

// Classify implements Interpreter.
func (h *Heuristic) Classify(_ context.Context, in Input) (domain.Interpretation, error) {
	minScore := h.MinScore
	if minScore == 0 {
		minScore = 0.12
	}

	times := ExtractTimes(in.Body, in.Table)
	ranked := h.lex.rank(in.Body)
	top := ranked[0]

	// A reply that names a concrete grounded time is either an accept (the
	// time is one we proposed) or a counter-proposal, regardless of how the
	// lexicon leans. Phrase matching alone cannot tell "Tuesday works" from
	// "how about Tuesday"; the times decide.
	if len(times) > 0 && top.Intent != domain.IntentDecline && top.Intent != domain.IntentQuestion {
		if sel := firstProposed(times, in.ProposedTimes); sel != nil {
			return domain.Interpretation{
				Intent:       domain.IntentAccept,
				SelectedTime: sel,
				Sentiment:    "positive",
				Confidence:   clamp(0.6 + top.Score),
				Reasoning:    fmt.Sprintf("reply names proposed time %s; lexicon top %s (%.2f)", sel.Format("2006-01-02 15:04"), top.Intent, top.Score),
			}, nil
		}
		return domain.Interpretation{
			Intent:               domain.IntentCounterPropose,
			CounterProposedTimes: times,
			Sentiment:            "neutral",
			Confidence:           clamp(0.55 + top.Score),
			Reasoning:            fmt.Sprintf("reply names %d grounded time(s) not among proposals", len(times)),
		}, nil
	}

	if top.Score < minScore {
		return domain.Interpretation{
			Intent:     domain.IntentUnclear,
			Sentiment:  "neutral",
			Confidence: top.Score,
			Reasoning:  fmt.Sprintf("no lexicon match above %.2f (best %s at %.2f)", minScore, top.Intent, top.Score),
		}, nil
	}

	out := domain.Interpretation{
		Intent:     top.Intent,
		Sentiment:  sentimentFor(top.Intent),
		Confidence: clamp(0.5 + top.Score),
		Reasoning:  fmt.Sprintf("lexicon match %s (%.2f)", top.Intent, top.Score),
	}
	switch top.Intent {
	case domain.IntentAccept:
		// Accept without a named time: take the sole proposal if there is
		// exactly one, otherwise we cannot know which slot they meant.
		if len(in.ProposedTimes) == 1 {
			t := in.ProposedTimes[0]
			out.SelectedTime = &t
		} else {
			return out.Downgrade("affirmative reply but no identifiable selected time"), nil
		}
	case domain.IntentCounterPropose:
		return out.Downgrade("counter-proposal phrasing but no groundable time"), nil
	}
	return out, nil
}

// firstProposed returns the first extracted time that matches a proposed one.
func firstProposed(extracted, proposed []time.Time) *time.Time {
	for _, t := range extracted {
		if domain.TimeList(proposed).Contains(t) {
			c := t
			return &c
		}
	}
	return nil
}

func sentimentFor(intent string) string {
	switch intent {
	case domain.IntentAccept:
		return "positive"
	case domain.IntentDecline:
		return "negative"
	default:
		return "neutral"
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

var _ Interpreter = (*Heuristic)(nil)
