// Package evidence turns raw provider answers into a cited decision and a
// confidence value. Each provider family has its own model because the
// evidence differs structurally: explicit citation links, grounded retrieval
// chunks, or unaided recall.
package evidence

import (
	"math"
	"strings"

	"github.com/sells-group/geo-visibility/internal/hostname"
)

// Family selects an evidence model.
type Family int

const (
	// FamilyCitationLink is a search LLM returning explicit source URLs.
	FamilyCitationLink Family = iota + 1
	// FamilyGrounded is an LLM returning retrieval grounding chunks.
	FamilyGrounded
	// FamilyRecall is a model answering from training data only.
	FamilyRecall
)

func (f Family) String() string {
	switch f {
	case FamilyCitationLink:
		return "citation_link"
	case FamilyGrounded:
		return "grounded"
	case FamilyRecall:
		return "recall"
	default:
		return "unknown"
	}
}

// Source is a retrieved document reference. Title is used by grounded
// providers that hide the real URL behind a redirect.
type Source struct {
	URL   string
	Title string
}

// Input is the raw material of one provider answer.
type Input struct {
	Domain  string
	Body    string
	Sources []Source
}

// Evidence is the scored outcome.
type Evidence struct {
	Cited         bool
	Confidence    float64
	Snippet       string
	SourceMatches int
	Mentions      int
}

// Score dispatches to the family's model.
func Score(f Family, in Input) Evidence {
	switch f {
	case FamilyCitationLink:
		return CitationLink(in)
	case FamilyGrounded:
		return Grounded(in)
	case FamilyRecall:
		return Recall(in)
	default:
		return Evidence{}
	}
}

// CitationLink scores answers that carry explicit citation URLs.
func CitationLink(in Input) Evidence {
	links := countSourceMatches(in.Domain, in.Sources, false)
	mentions, first := countMentions(in.Body, in.Domain)

	ev := Evidence{SourceMatches: links, Mentions: mentions}
	switch {
	case links > 0:
		conf := math.Min(0.97, 0.88+0.03*float64(links-1))
		if mentions > 0 {
			conf = math.Min(0.98, conf+0.02)
		}
		ev.Cited, ev.Confidence = true, round2(conf)
	case mentions > 0:
		conf := 0.62 + math.Min(0.14, 0.04*float64(mentions-1))
		if first < 500 {
			conf += 0.03
		}
		ev.Cited, ev.Confidence = true, round2(conf)
	}
	if ev.Cited {
		ev.Snippet = Snippet(in.Body, in.Domain)
	}
	return ev
}

// Grounded scores answers that carry retrieval grounding chunks.
func Grounded(in Input) Evidence {
	chunks := countSourceMatches(in.Domain, in.Sources, true)
	mentions, _ := countMentions(in.Body, in.Domain)

	ev := Evidence{SourceMatches: chunks, Mentions: mentions}
	switch {
	case chunks > 0:
		conf := math.Min(0.95, 0.82+0.04*float64(chunks-1))
		if mentions > 0 {
			conf = math.Min(0.97, conf+0.02)
		}
		ev.Cited, ev.Confidence = true, round2(conf)
	case mentions > 0:
		conf := math.Min(0.75, 0.58+0.05*float64(mentions-1))
		ev.Cited, ev.Confidence = true, round2(conf)
	}
	if ev.Cited {
		ev.Snippet = Snippet(in.Body, in.Domain)
	}
	return ev
}

// Recall scores answers from models with no live retrieval. A mention only
// counts when the model did not also say it does not know the site.
func Recall(in Input) Evidence {
	mentions, first := countMentions(in.Body, in.Domain)
	ev := Evidence{Mentions: mentions}
	if mentions == 0 || Declined(in.Body) {
		return ev
	}

	conf := 0.42 + math.Min(0.22, 0.06*float64(mentions-1))
	if first < 300 {
		conf += 0.04
	}
	if mentions >= 3 {
		conf += 0.03
	}
	ev.Cited = true
	ev.Confidence = round2(conf)
	ev.Snippet = Snippet(in.Body, in.Domain)
	return ev
}

var declinePhrases = []string{
	"i don't have information",
	"i do not have information",
	"i don't have any information",
	"i don't have specific information",
	"no information available",
	"not aware of",
	"i'm not familiar",
	"i am not familiar",
	"i couldn't find",
	"i could not find",
	"unable to find information",
	"i don't know",
}

// Declined reports whether the answer contains an "I don't know" phrase.
func Declined(body string) bool {
	lower := strings.ToLower(strings.ReplaceAll(body, "’", "'"))
	for _, p := range declinePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func countSourceMatches(domain string, sources []Source, useTitle bool) int {
	n := 0
	for _, s := range sources {
		if hostname.Matches(hostname.FromURL(s.URL), domain) ||
			(useTitle && hostname.Matches(s.Title, domain)) {
			n++
		}
	}
	return n
}

// countMentions returns the number of case-insensitive, non-overlapping
// occurrences of the domain in body and the byte offset of the first one
// (-1 when absent).
func countMentions(body, domain string) (int, int) {
	needle := hostname.Normalize(domain)
	if needle == "" || body == "" {
		return 0, -1
	}
	lower := strings.ToLower(body)
	return strings.Count(lower, needle), strings.Index(lower, needle)
}

const snippetRadius = 120

// Snippet returns the text around the first mention of domain, or the start
// of the body when the domain is not mentioned.
func Snippet(body, domain string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	_, first := countMentions(body, domain)
	if first < 0 {
		return truncateRunes(body, 2*snippetRadius)
	}

	start := max(first-snippetRadius, 0)
	end := min(first+len(hostname.Normalize(domain))+snippetRadius, len(body))
	for start > 0 && !isRuneStart(body[start]) {
		start--
	}
	for end < len(body) && !isRuneStart(body[end]) {
		end++
	}

	s := strings.TrimSpace(body[start:end])
	if start > 0 {
		s = "..." + s
	}
	if end < len(body) {
		s += "..."
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
