// Package interpret classifies inbound free-text replies into the small set
// of negotiation intents. The actual language capability sits behind the
// Interpreter interface: production wires an HTTP structured-output client
// against an AI gateway, tests and degraded operation use the deterministic
// lexicon classifier in this package. Either way, raw model output never
// crosses this boundary — only the validated tagged union does, and every
// parsed instant is reconciled against the grounding table before it is
// trusted.
package interpret

import (
	"context"
	"time"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
	"github.com/meridian-crm/go-scheduling-backend/internal/grounding"
)

// Input is everything the interpreter may see for one reply. The grounding
// table is mandatory: classification without it is exactly the ungrounded
// date guessing this design exists to prevent.
type Input struct {
	Body          string
	Subject       string
	ProposedTimes []time.Time
	Table         grounding.Table
	MeetingType   string
}

// Interpreter is the AI capability boundary.
//
// Implementations must honor ctx for cancellation and timeouts and must
// return an Interpretation that already passed domain validation. Callers
// still run Sanitize on the result; an implementation cannot opt out of
// grounding reconciliation.
type Interpreter interface {
	Classify(ctx context.Context, in Input) (domain.Interpretation, error)
}

// Sanitize reconciles an interpretation against the grounding table and the
// request's candidate times, downgrading to unclear whenever a parsed time
// cannot be trusted:
//
//   - accept: the selected time must ground inside the table window.
//   - counter_propose: each proposed instant is filtered through the table;
//     if none survive, the whole interpretation degrades to unclear.
//
// The candidates list carries the times we actually offered; an accept that
// names a time we never proposed is downgraded rather than booked.
func Sanitize(in Input, candidates []time.Time, raw domain.Interpretation) domain.Interpretation {
	switch raw.Intent {
	case domain.IntentAccept:
		if raw.SelectedTime == nil {
			return raw.Downgrade("accept carried no selected time")
		}
		if !in.Table.Contains(*raw.SelectedTime) {
			return raw.Downgrade("selected time falls outside the grounding window")
		}
		if len(candidates) > 0 && !domain.TimeList(candidates).Contains(*raw.SelectedTime) {
			return raw.Downgrade("selected time was never proposed on this request")
		}
	case domain.IntentCounterPropose:
		kept := in.Table.Filter(raw.CounterProposedTimes)
		if len(kept) == 0 {
			return raw.Downgrade("no counter-proposed time could be reconciled with the calendar table")
		}
		raw.CounterProposedTimes = kept
	}
	return raw
}
