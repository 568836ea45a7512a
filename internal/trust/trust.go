// Package trust asks a search provider whether a site is listed on a fixed
// set of third-party directories.
package trust

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/geo-visibility/internal/hostname"
	"github.com/sells-group/geo-visibility/internal/model"
	"github.com/sells-group/geo-visibility/pkg/perplexity"
)

// DefaultSources are the directories checked when none are configured.
var DefaultSources = []string{"g2.com", "capterra.com", "trustpilot.com", "crunchbase.com"}

const (
	defaultDelay   = time.Second
	defaultTimeout = 30 * time.Second
	promptFormat   = "Is %s listed on %s? If yes, what's the profile URL?"
)

// Checker runs the sequential directory sweep.
type Checker struct {
	client  perplexity.Client
	sources []string
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithSources overrides DefaultSources.
func WithSources(sources []string) Option {
	return func(c *Checker) {
		if len(sources) > 0 {
			c.sources = sources
		}
	}
}

// WithDelay sets the pause between consecutive directory questions. Zero
// disables pacing.
func WithDelay(d time.Duration) Option {
	return func(c *Checker) {
		c.limiter = newLimiter(d)
	}
}

// WithTimeout bounds each directory question.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the CheckedAt clock.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// NewChecker creates a Checker. A nil client yields an unconfigured checker
// whose sweep returns nothing.
func NewChecker(client perplexity.Client, opts ...Option) *Checker {
	c := &Checker{
		client:  client,
		sources: DefaultSources,
		limiter: newLimiter(defaultDelay),
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Configured reports whether the sweep can run.
func (c *Checker) Configured() bool {
	return c != nil && c.client != nil
}

// Sources returns the directories this checker asks about.
func (c *Checker) Sources() []string {
	return c.sources
}

// Check asks about each source in order. A failing source is recorded on its
// listing and does not stop the sweep. Cancellation stops the sweep and
// returns the listings gathered so far.
func (c *Checker) Check(ctx context.Context, siteID, domain string) []model.TrustListing {
	if !c.Configured() {
		return nil
	}
	log := zap.L().With(zap.String("domain", domain), zap.String("site_id", siteID))

	listings := make([]model.TrustListing, 0, len(c.sources))
	for _, source := range c.sources {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("trust: sweep interrupted", zap.Error(err))
			break
		}

		l, err := c.checkOne(ctx, domain, source)
		l.SiteID = siteID
		if err != nil {
			l.Error = err.Error()
			log.Warn("trust: source check failed", zap.String("source", source), zap.Error(err))
		}
		listings = append(listings, l)
	}
	return listings
}

func (c *Checker) checkOne(ctx context.Context, domain, source string) (model.TrustListing, error) {
	l := model.TrustListing{SourceDomain: source, CheckedAt: c.now().UTC()}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temp := 0.0
	resp, err := c.client.ChatCompletion(callCtx, perplexity.ChatCompletionRequest{
		Messages:    []perplexity.Message{{Role: "user", Content: fmt.Sprintf(promptFormat, domain, source)}},
		Temperature: &temp,
	})
	if err != nil {
		return l, eris.Wrapf(err, "trust: check %s", source)
	}

	l.IsListed = IsListed(resp.Content())
	if l.IsListed {
		l.ProfileURL = ProfileURL(resp.SourceURLs(), source, domain)
	}
	return l, nil
}

var negativePhrases = []string{"no", "not listed", "not found"}

// IsListed applies the yes/no decision: the word "yes" is present and none of
// the negative words or phrases are. Matching is on whole words so "know" or
// "yesterday" do not count.
func IsListed(answer string) bool {
	padded := " " + strings.Join(words(answer), " ") + " "
	if !strings.Contains(padded, " yes ") {
		return false
	}
	for _, p := range negativePhrases {
		if strings.Contains(padded, " "+p+" ") {
			return false
		}
	}
	return true
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ProfileURL returns the first URL mentioning both the directory's base name
// and the site's first label, or "".
func ProfileURL(urls []string, source, domain string) string {
	base := hostname.Label(source)
	label := hostname.FirstLabel(domain)
	if base == "" || label == "" {
		return ""
	}
	for _, u := range urls {
		lower := strings.ToLower(u)
		if strings.Contains(lower, base) && strings.Contains(lower, label) {
			return u
		}
	}
	return ""
}
