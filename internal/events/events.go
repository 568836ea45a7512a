// Package events publishes remediation events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/model"
)

// TypeOpportunitiesReady is emitted after a cycle produced opportunities.
const TypeOpportunitiesReady = "opportunities_ready"

// OpportunitiesReady carries the ranked opportunities of one check cycle.
type OpportunitiesReady struct {
	CheckID       string              `json:"check_id"`
	SiteID        string              `json:"site_id,omitempty"`
	Domain        string              `json:"domain"`
	RunningScore  int                 `json:"running_score"`
	Opportunities []model.Opportunity `json:"opportunities"`
	At            time.Time           `json:"at"`
}

// Publisher publishes remediation events.
type Publisher interface {
	PublishOpportunities(ctx context.Context, ev OpportunitiesReady) error
	Close() error
}

// streamAdder is the subset of *redis.Client the publisher uses.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type redisPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisPublisher creates a publisher appending to a Redis stream. maxLen
// bounds the stream approximately; 0 leaves it unbounded.
func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) Publisher {
	return newRedisPublisher(client, stream, maxLen)
}

func newRedisPublisher(client streamAdder, stream string, maxLen int64) *redisPublisher {
	return &redisPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Dial parses a redis:// URL and returns a publisher on the stream.
func Dial(url, stream string, maxLen int64) (Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "events: parse redis url")
	}
	return NewRedisPublisher(redis.NewClient(opts), stream, maxLen), nil
}

func (p *redisPublisher) PublishOpportunities(ctx context.Context, ev OpportunitiesReady) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "events: marshal opportunities")
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":     TypeOpportunitiesReady,
			"check_id": ev.CheckID,
			"site_id":  ev.SiteID,
			"domain":   ev.Domain,
			"count":    len(ev.Opportunities),
			"payload":  string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return eris.Wrapf(err, "events: xadd %s", p.stream)
	}

	zap.L().Debug("events: published opportunities",
		zap.String("stream", p.stream),
		zap.String("id", id),
		zap.String("check_id", ev.CheckID),
		zap.Int("count", len(ev.Opportunities)),
	)
	return nil
}

func (p *redisPublisher) Close() error {
	return eris.Wrap(p.client.Close(), "events: close redis")
}

// LogPublisher writes events to the log. It is used when Redis is not configured.
type LogPublisher struct{}

func (LogPublisher) PublishOpportunities(_ context.Context, ev OpportunitiesReady) error {
	zap.L().Info("events: opportunities ready",
		zap.String("check_id", ev.CheckID),
		zap.String("site_id", ev.SiteID),
		zap.String("domain", ev.Domain),
		zap.Int("count", len(ev.Opportunities)),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }
