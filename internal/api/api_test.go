package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) RunCheck(ctx context.Context, req model.CheckRequest) (*model.CheckCycleResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckCycleResult), args.Error(1)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetRunningScore(ctx context.Context, siteID string) (*model.RunningScore, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunningScore), args.Error(1)
}

func (m *mockReader) ListCitations(ctx context.Context, siteID string, limit int) ([]model.Citation, error) {
	args := m.Called(ctx, siteID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Citation), args.Error(1)
}

func (m *mockReader) ListSnapshots(ctx context.Context, siteID string, limit int) ([]model.VisibilitySnapshot, error) {
	args := m.Called(ctx, siteID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.VisibilitySnapshot), args.Error(1)
}

func (m *mockReader) ListTrustListings(ctx context.Context, siteID string) ([]model.TrustListing, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TrustListing), args.Error(1)
}

func (m *mockReader) MarkAddressed(ctx context.Context, siteID, query string) error {
	return m.Called(ctx, siteID, query).Error(0)
}

func (m *mockReader) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockOpps struct {
	mock.Mock
}

func (m *mockOpps) Opportunities(ctx context.Context, siteID string) ([]model.Opportunity, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Opportunity), args.Error(1)
}

func newTestRouter() (http.Handler, *mockChecker, *mockReader, *mockOpps) {
	c, r, o := &mockChecker{}, &mockReader{}, &mockOpps{}
	return NewServer(c, r, o).Router([]string{"https://app.example.com"}), c, r, o
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h, _, r, _ := newTestRouter()
	r.On("Ping", mock.Anything).Return(nil).Once()
	r.On("Ping", mock.Anything).Return(eris.New("db down")).Once()

	rr := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "db down")
}

func TestRunCheck(t *testing.T) {
	h, c, _, _ := newTestRouter()
	c.On("RunCheck", mock.Anything, model.CheckRequest{
		Domain:        "acme.io",
		SiteID:        "site-1",
		Plan:          model.PlanTier2,
		Category:      "crm",
		CustomQueries: []string{"acme vs globex"},
	}).Return(&model.CheckCycleResult{CheckID: "chk-1", Domain: "acme.io", VisibilityPercent: 40}, nil)

	rr := do(h, http.MethodPost, "/v1/checks",
		`{"domain":"acme.io","site_id":"site-1","plan":"Tier2","category":"crm","custom_queries":["acme vs globex"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var res model.CheckCycleResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "chk-1", res.CheckID)
	assert.Equal(t, 40, res.VisibilityPercent)
	c.AssertExpectations(t)
}

func TestRunCheck_BadRequests(t *testing.T) {
	h, c, _, _ := newTestRouter()
	c.On("RunCheck", mock.Anything, mock.Anything).Return(nil, eris.New(`dispatch: invalid domain "://"`))

	rr := do(h, http.MethodPost, "/v1/checks", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")

	rr = do(h, http.MethodPost, "/v1/checks", `{"domain":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "domain is required")

	rr = do(h, http.MethodPost, "/v1/checks", `{"domain":"://"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid domain")
}

func TestGetScore(t *testing.T) {
	h, _, r, _ := newTestRouter()
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	r.On("GetRunningScore", mock.Anything, "site-1").Return(&model.RunningScore{SiteID: "site-1", Score: 53, Checks: 2, UpdatedAt: at}, nil)
	r.On("GetRunningScore", mock.Anything, "new").Return(nil, nil)
	r.On("GetRunningScore", mock.Anything, "broken").Return(nil, eris.New("boom"))

	rr := do(h, http.MethodGet, "/v1/sites/site-1/score", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rs model.RunningScore
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rs))
	assert.Equal(t, 53, rs.Score)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/v1/sites/new/score", "").Code)

	rr = do(h, http.MethodGet, "/v1/sites/broken/score", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}

func TestListEndpoints(t *testing.T) {
	h, _, r, o := newTestRouter()
	r.On("ListCitations", mock.Anything, "s", 5).Return([]model.Citation{{ID: "c-1", Platform: model.PlatformGemini}}, nil)
	r.On("ListSnapshots", mock.Anything, "s", 0).Return(nil, nil)
	r.On("ListTrustListings", mock.Anything, "s").Return([]model.TrustListing{{SourceDomain: "g2.com", IsListed: true}}, nil)
	o.On("Opportunities", mock.Anything, "s").Return([]model.Opportunity{{Query: "best crm?", Impact: model.ImpactHigh}}, nil)

	rr := do(h, http.MethodGet, "/v1/sites/s/citations?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var citations []model.Citation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &citations))
	require.Len(t, citations, 1)
	assert.Equal(t, model.PlatformGemini, citations[0].Platform)

	rr = do(h, http.MethodGet, "/v1/sites/s/snapshots?limit=abc", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = do(h, http.MethodGet, "/v1/sites/s/trust", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"source_domain":"g2.com"`)

	rr = do(h, http.MethodGet, "/v1/sites/s/opportunities", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"impact":"high"`)
}

func TestListOpportunities_Error(t *testing.T) {
	h, _, _, o := newTestRouter()
	o.On("Opportunities", mock.Anything, "s").Return(nil, eris.New("gap: load analyses for s"))

	rr := do(h, http.MethodGet, "/v1/sites/s/opportunities", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMarkAddressed(t *testing.T) {
	h, _, r, _ := newTestRouter()
	r.On("MarkAddressed", mock.Anything, "s", "Acme pricing").Return(nil)

	rr := do(h, http.MethodPost, "/v1/sites/s/opportunities/addressed", `{"query":"Acme pricing"}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(h, http.MethodPost, "/v1/sites/s/opportunities/addressed", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	r.AssertNumberOfCalls(t, "MarkAddressed", 1)
}

func TestCORS(t *testing.T) {
	h, _, r, _ := newTestRouter()
	r.On("Ping", mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	h, _, _, _ := newTestRouter()
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/v1/nope", "").Code)
}
