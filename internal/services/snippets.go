// Package services – outreach enrichment
//
// Static catalog of social-proof snippets and seasonality lines the composer
// weaves into outreach. Snippets carry stable IDs recorded on the audit action
// that used them, so one negotiation never repeats itself.
package services

import "time"

// snippet is one reusable social-proof line.
type snippet struct {
	ID   string
	Text string
}

// socialProofCatalog is consumed in order; the composer picks the first entry
// not yet used on the request.
var socialProofCatalog = []snippet{
	{
		ID:   "teams-like-yours",
		Text: "Teams in your space typically see the most value from this conversation within the first few weeks.",
	},
	{
		ID:   "peer-rollouts",
		Text: "We've recently walked several companies of a similar size through this, so the session will be very concrete.",
	},
	{
		ID:   "short-agenda",
		Text: "We keep these focused: a short agenda up front and plenty of room for your questions.",
	},
	{
		ID:   "reference-offer",
		Text: "Happy to connect you with a current customer in a comparable setup if that would be useful beforehand.",
	},
}

// pickSnippet returns the first catalog entry whose ID is not in used, or a
// zero snippet when the catalog is exhausted.
func pickSnippet(used []string) snippet {
	seen := make(map[string]struct{}, len(used))
	for _, id := range used {
		seen[id] = struct{}{}
	}
	for _, s := range socialProofCatalog {
		if _, ok := seen[s.ID]; !ok {
			return s
		}
	}
	return snippet{}
}

// seasonalityLine returns a calendar-aware nudge for months where scheduling
// friction is predictably higher, or "" for ordinary months.
func seasonalityLine(m time.Month) string {
	switch m {
	case time.December:
		return "With year-end calendars filling up fast, grabbing a slot early usually works best."
	case time.January:
		return "Calendars tend to open up again in January, so there's a good window right now."
	case time.July, time.August:
		return "With summer schedules in play, I've included a few options to work around any time off."
	}
	return ""
}
