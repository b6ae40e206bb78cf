// Package filter provides a simple, deterministic relevance classifier for
// inbound group messages. It decides whether a message looks like a real
// estate listing before anything is persisted, so it runs inline on the hot
// message path. It is intentionally small and dependency-free:
//
//   - No logging and no I/O (callers decide how/what to log)
//   - Pure function: identical input always yields identical output
//   - Deterministic additive scoring with a fixed decision threshold
//
// Scoring accumulates points for domain keyword matches (tiered), five
// structural pattern families (price, room count, area, contact number,
// floor, each counted at most once), and message-structure bonuses, then
// clamps the total to [0,100]. A message is relevant iff score >= Threshold,
// and confidence is score/100.
//
// This classifier is the sole gate controlling whether a message is stored
// at all: anything it rejects is silently dropped, never queued. Threshold
// is therefore an explicit tunable, not an implementation detail.
package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Threshold is the minimum score (out of 100) for a message to be relevant.
const Threshold = 60

// Result is the classification outcome for one message.
type Result struct {
	IsRelevant bool
	Confidence float64 // score / 100, in [0,1]
	Signals    []string
}

// keywords are domain terms counted individually before tiering.
var keywords = []string{
	"rent", "sale", "sell", "lease", "flat", "apartment", "bhk", "house",
	"villa", "bungalow", "plot", "property", "tenant", "deposit", "brokerage",
	"furnished", "unfurnished", "semi-furnished", "bachelor", "family",
	"broker", "owner", "society", "carpet area", "builtup", "possession",
	"ready to move", "vacant", "available",
}

// Structural pattern families. Each family contributes its points at most
// once, no matter how many times it matches.
var (
	rePrice = regexp.MustCompile(`(?:₹|\brs\.?\s*|\binr\s*)\d|\d+\s*(?:/-|/month|/mo\b|per month|\bpm\b)|\b\d+(?:\.\d+)?\s*(?:k|lakh|lakhs|lac|lacs|cr|crore|crores)\b`)
	reRooms = regexp.MustCompile(`\b\d\s*(?:bhk|rk|bed|beds|bedroom|bedrooms)\b`)
	reArea  = regexp.MustCompile(`\b\d+\s*(?:sq\.?\s?ft|sqft|sq\.?\s?yards?|sq\.?\s?mtr|gaj|acres?)\b`)
	rePhone = regexp.MustCompile(`(?:\+91[\s-]?)?[6-9]\d{9}\b`)
	reFloor = regexp.MustCompile(`\b(?:\d+(?:st|nd|rd|th)?\s*floor|ground floor|top floor)\b`)

	reDigit = regexp.MustCompile(`\d`)
)

// filler words that make a short message conversational noise.
var filler = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "good": {}, "morning": {}, "evening": {},
	"night": {}, "afternoon": {}, "thanks": {}, "thank": {}, "you": {},
	"ok": {}, "okay": {}, "yes": {}, "no": {}, "sure": {}, "welcome": {},
	"please": {}, "done": {}, "noted": {},
}

type family struct {
	name   string
	re     *regexp.Regexp
	points int
}

var families = []family{
	{"price", rePrice, 15},
	{"rooms", reRooms, 15},
	{"area", reArea, 10},
	{"contact", rePhone, 10},
	{"floor", reFloor, 5},
}

// Classify scores text and returns the listing/non-listing decision.
func Classify(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}
	}
	lowered := strings.ToLower(trimmed)
	length := utf8.RuneCountInString(trimmed)

	// Short conversational filler never reaches scoring.
	if length < 30 && isFillerOnly(lowered) {
		return Result{}
	}

	score := 0
	var signals []string

	// (a) keyword matches, tiered
	kw := 0
	for _, k := range keywords {
		if strings.Contains(lowered, k) {
			kw++
		}
	}
	switch {
	case kw >= 3:
		score += 30
		signals = append(signals, "keywords:strong")
	case kw >= 1:
		score += 15
		signals = append(signals, "keywords:weak")
	}

	// (b) structural pattern families, each counted once
	for _, f := range families {
		if f.re.MatchString(lowered) {
			score += f.points
			signals = append(signals, f.name)
		}
	}

	// (c) message-structure bonuses
	words := len(strings.Fields(trimmed))
	if strings.Count(trimmed, "\n") >= 2 && words >= 12 {
		score += 5
		signals = append(signals, "multiline")
	}
	if length >= 40 && reDigit.MatchString(trimmed) {
		score += 5
		signals = append(signals, "numeric")
	}
	if kw >= 1 && hasEmoji(trimmed) {
		score += 5
		signals = append(signals, "emoji")
	}
	if length >= 200 {
		score += 5
		signals = append(signals, "long")
	}

	// (d) short messages with almost no domain vocabulary
	if length < 50 && kw < 2 {
		score -= 20
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Result{
		IsRelevant: score >= Threshold,
		Confidence: float64(score) / 100,
		Signals:    signals,
	}
}

// isFillerOnly reports whether every word of s is conversational filler.
func isFillerOnly(s string) bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if _, ok := filler[w]; !ok {
			return false
		}
	}
	return true
}

// hasEmoji reports whether s contains at least one expressive glyph.
func hasEmoji(s string) bool {
	for _, r := range s {
		if r >= 0x1F300 && r <= 0x1FAFF || r >= 0x2600 && r <= 0x27BF {
			return true
		}
	}
	return false
}
