package interpret

import (
	"sort"

	"github.com/meridian-crm/go-scheduling-backend/internal/domain"
)

// intentScore is one ranked intent with its similarity score.
type intentScore struct {
	Intent string
	Score  float64
}

// lexicon scores reply text against per-intent exemplar phrases using Jaccard
// similarity over token sets: score = |Q ∩ E| / |Q ∪ E|, taking the best
// exemplar per intent. The exemplar sets are immutable after construction and
// safe for concurrent use. Deterministic tie-break: intent name ascending.
type lexicon struct {
	exemplars map[string][]map[string]struct{}
}

// exemplarPhrases seed the fallback classifier. Each line is one typical
// reply; scoring is set-based so word order and filler do not matter.
var exemplarPhrases = map[string][]string{
	domain.IntentAccept: {
		"that works for me",
		"works great see you then",
		"sounds good let's do tuesday",
		"yes that time works confirmed",
		"perfect let's lock it in",
		"great book it",
	},
	domain.IntentDecline: {
		"not interested thanks",
		"please remove me from your list",
		"we don't have budget for this",
		"no thanks we're all set",
		"stop emailing me unsubscribe",
		"we went with another vendor",
	},
	domain.IntentCounterPropose: {
		"can we do another day instead",
		"none of those work how about next week",
		"could we push it to later",
		"i'm busy then can you do morning",
		"what about wednesday instead",
	},
	domain.IntentQuestion: {
		"what is this meeting about",
		"who else will be joining the call",
		"how long will it take",
		"can you send an agenda first",
		"what's the pricing before we talk",
	},
}

// newLexicon tokenizes the exemplar phrases once.
func newLexicon() *lexicon {
	ex := make(map[string][]map[string]struct{}, len(exemplarPhrases))
	for intent, phrases := range exemplarPhrases {
		sets := make([]map[string]struct{}, 0, len(phrases))
		for _, p := range phrases {
			sets = append(sets, tokenSet(p))
		}
		ex[intent] = sets
	}
	return &lexicon{exemplars: ex}
}

// rank returns all intents ordered by descending best-exemplar score.
func (l *lexicon) rank(body string) []intentScore {
	q := tokenSet(body)
	out := make([]intentScore, 0, len(l.exemplars))
	for intent, sets := range l.exemplars {
		best := 0.0
		for _, e := range sets {
			if s := jaccard(q, e); s > best {
				best = s
			}
		}
		out = append(out, intentScore{Intent: intent, Score: best})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Intent < out[j].Intent
	})
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
