// Package querygen builds the bounded, deduplicated question set sent to the
// AI providers for a domain.
package querygen

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/geo-visibility/internal/hostname"
	"github.com/sells-group/geo-visibility/internal/model"
)

// Request is the input of Generate.
type Request struct {
	Domain        string
	Plan          model.Plan
	Category      string
	CustomQueries []string
}

// Generator composes queries from template layers.
type Generator struct {
	templates *Templates
	now       func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithTemplates replaces the embedded templates.
func WithTemplates(t *Templates) Option {
	return func(g *Generator) {
		if t != nil {
			g.templates = t
		}
	}
}

// WithClock overrides the clock used for the {year} placeholder.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a Generator with the embedded templates.
func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, o := range opts {
		o(g)
	}
	if g.templates == nil {
		g.templates = DefaultTemplates()
	}
	return g
}

// Generate returns at most plan.Quota() queries in priority order: custom,
// base, category, intent. Duplicates are dropped case-insensitively, keeping
// the first occurrence.
func (g *Generator) Generate(req Request) []model.CheckQuery {
	quota := req.Plan.Quota()
	if quota <= 0 {
		return nil
	}

	domain := hostname.Normalize(req.Domain)
	if domain == "" {
		domain = strings.TrimSpace(req.Domain)
	}
	r := strings.NewReplacer(
		"{brand}", BrandName(domain),
		"{domain}", domain,
		"{year}", strconv.Itoa(g.now().Year()),
		"{category}", strings.ToLower(strings.TrimSpace(req.Category)),
	)

	custom := req.CustomQueries
	if limit := req.Plan.CustomCap(); len(custom) > limit {
		custom = custom[:limit]
	}

	out := make([]model.CheckQuery, 0, quota)
	seen := make(map[string]struct{}, quota)
	add := func(text string, src model.QuerySource) bool {
		text = strings.TrimSpace(text)
		key := model.NormalizeQuery(text)
		if key == "" {
			return len(out) < quota
		}
		if _, dup := seen[key]; dup {
			return len(out) < quota
		}
		seen[key] = struct{}{}
		out = append(out, model.CheckQuery{Text: text, Source: src, Rank: len(out)})
		return len(out) < quota
	}

	layers := []struct {
		src    model.QuerySource
		texts  []string
		expand bool
	}{
		{model.QuerySourceCustom, custom, false},
		{model.QuerySourceBase, g.templates.Base, true},
		{model.QuerySourceCategory, g.templates.Categories[strings.ToLower(strings.TrimSpace(req.Category))], true},
		{model.QuerySourceIntent, g.templates.Intent, true},
	}
	for _, l := range layers {
		for _, text := range l.texts {
			if l.expand {
				text = r.Replace(text)
			}
			if !add(text, l.src) {
				return out
			}
		}
	}
	return out
}

// BrandName derives a display name from a domain: "www.acme.co.uk" becomes
// "Acme".
func BrandName(domain string) string {
	label := hostname.Label(domain)
	if label == "" {
		return strings.TrimSpace(domain)
	}
	return cases.Title(language.English).String(label)
}
