package interpret

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/meridian-crm/go-scheduling-backend/internal/grounding"
)

// stopwords removed before scoring. Deliberately tiny: with replies this
// short, aggressive stopword lists delete the signal ("can't" vs "can").
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "and": {}, "is": {},
	"it": {}, "be": {}, "will": {}, "i": {}, "we": {}, "you": {},
}

// Tokenize lowercases s, splits on non-letter/digit boundaries (keeping
// apostrophes so "can't" survives as one token), and drops stopwords.
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	out := make([]string, 0, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if _, skip := stopwords[tok]; !skip {
			out = append(out, tok)
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// tokenSet returns the unique-token set of s.
func tokenSet(s string) map[string]struct{} {
	toks := Tokenize(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

// timePhraseRE matches "<weekday> [at] <clock>" phrases such as "Tuesday 2pm",
// "monday at 10:30 am", or "Wed at noon".
var timePhraseRE = regexp.MustCompile(
	`(?i)\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday|sun|mon|tue|tues|wed|weds|thu|thur|thurs|fri|sat)\b(?:\s+at)?\s+(noon|midday|(\d{1,2})(?::(\d{2}))?\s*(am|pm)?)`)

// ExtractTimes scans body for weekday-plus-clock phrases and grounds each one
// against the table. Phrases whose weekday cannot be grounded, or whose clock
// is nonsensical, are skipped. Results preserve order of appearance and are
// de-duplicated.
func ExtractTimes(body string, table grounding.Table) []time.Time {
	matches := timePhraseRE.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(matches))
	out := make([]time.Time, 0, len(matches))
	for _, m := range matches {
		wd, ok := grounding.ParseWeekday(m[1])
		if !ok {
			continue
		}
		hour, minute, ok := parseClock(m[2], m[3], m[4], m[5])
		if !ok {
			continue
		}
		t, ok := table.ResolveDayTime(wd, hour, minute)
		if !ok {
			continue
		}
		if key := t.Unix(); !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}
	return out
}

// parseClock normalizes a matched clock expression to 24h hour/minute.
// whole is the full clock match; hh/mm/ampm are the numeric submatches.
func parseClock(whole, hh, mm, ampm string) (hour, minute int, ok bool) {
	switch strings.ToLower(strings.TrimSpace(whole)) {
	case "noon", "midday":
		return 12, 0, true
	}
	if hh == "" {
		return 0, 0, false
	}
	hour = atoi(hh)
	minute = atoi(mm)
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	switch strings.ToLower(ampm) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "":
		// Bare "Tuesday 2" almost always means afternoon in business mail.
		if hour >= 1 && hour <= 7 {
			hour += 12
		}
	}
	return hour, minute, true
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
