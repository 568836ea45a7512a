package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockAdder struct {
	mock.Mock
}

func (m *mockAdder) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	args := m.Called(ctx, a)
	return redis.NewStringResult(args.String(0), args.Error(1))
}

func (m *mockAdder) Close() error {
	return m.Called().Error(0)
}

func sampleEvent() OpportunitiesReady {
	return OpportunitiesReady{
		CheckID:      "chk-1",
		SiteID:       "site-1",
		Domain:       "acme.io",
		RunningScore: 42,
		Opportunities: []model.Opportunity{
			{Query: "best crm?", NormalizedQuery: "best crm?", BuyerIntent: 0.8, Impact: model.ImpactHigh},
		},
		At: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher_PublishOpportunities(t *testing.T) {
	m := &mockAdder{}
	m.On("XAdd", mock.Anything, mock.MatchedBy(func(a *redis.XAddArgs) bool {
		values, ok := a.Values.(map[string]any)
		if !ok || a.Stream != "geo:opportunities" || a.MaxLen != 1000 || !a.Approx {
			return false
		}
		var ev OpportunitiesReady
		if err := json.Unmarshal([]byte(values["payload"].(string)), &ev); err != nil {
			return false
		}
		return values["type"] == TypeOpportunitiesReady &&
			values["check_id"] == "chk-1" &&
			values["count"] == 1 &&
			ev.Opportunities[0].Impact == model.ImpactHigh
	})).Return("1-0", nil)

	p := newRedisPublisher(m, "geo:opportunities", 1000)
	require.NoError(t, p.PublishOpportunities(context.Background(), sampleEvent()))
	m.AssertExpectations(t)
}

func TestRedisPublisher_UnboundedStream(t *testing.T) {
	m := &mockAdder{}
	m.On("XAdd", mock.Anything, mock.MatchedBy(func(a *redis.XAddArgs) bool {
		return a.MaxLen == 0 && !a.Approx
	})).Return("1-0", nil)

	p := newRedisPublisher(m, "s", 0)
	require.NoError(t, p.PublishOpportunities(context.Background(), sampleEvent()))
	m.AssertExpectations(t)
}

func TestRedisPublisher_Error(t *testing.T) {
	m := &mockAdder{}
	m.On("XAdd", mock.Anything, mock.Anything).Return("", eris.New("connection refused"))

	p := newRedisPublisher(m, "geo:opportunities", 0)
	err := p.PublishOpportunities(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events: xadd geo:opportunities")
}

func TestRedisPublisher_Close(t *testing.T) {
	m := &mockAdder{}
	m.On("Close").Return(nil)
	require.NoError(t, newRedisPublisher(m, "s", 0).Close())
	m.AssertExpectations(t)
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial("not-a-url", "s", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events: parse redis url")
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.PublishOpportunities(context.Background(), sampleEvent()))
	assert.NoError(t, p.Close())
}
