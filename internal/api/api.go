// Package api exposes check cycles and site visibility data over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/geo-visibility/internal/model"
)

// Checker runs a check cycle.
type Checker interface {
	RunCheck(ctx context.Context, req model.CheckRequest) (*model.CheckCycleResult, error)
}

// Reader is the read side of the store plus remediation marking.
type Reader interface {
	GetRunningScore(ctx context.Context, siteID string) (*model.RunningScore, error)
	ListCitations(ctx context.Context, siteID string, limit int) ([]model.Citation, error)
	ListSnapshots(ctx context.Context, siteID string, limit int) ([]model.VisibilitySnapshot, error)
	ListTrustListings(ctx context.Context, siteID string) ([]model.TrustListing, error)
	MarkAddressed(ctx context.Context, siteID, query string) error
	Ping(ctx context.Context) error
}

// OpportunityLister derives a site's current opportunities.
type OpportunityLister interface {
	Opportunities(ctx context.Context, siteID string) ([]model.Opportunity, error)
}

// Server holds the handler dependencies.
type Server struct {
	checker Checker
	reader  Reader
	opps    OpportunityLister
}

// NewServer creates a Server.
func NewServer(checker Checker, reader Reader, opps OpportunityLister) *Server {
	return &Server{checker: checker, reader: reader, opps: opps}
}

// Router builds the chi router. origins configures CORS; empty allows none.
func (s *Server) Router(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/checks", s.runCheck)
		r.Route("/sites/{siteID}", func(r chi.Router) {
			r.Get("/score", s.getScore)
			r.Get("/citations", s.listCitations)
			r.Get("/snapshots", s.listSnapshots)
			r.Get("/trust", s.listTrust)
			r.Get("/opportunities", s.listOpportunities)
			r.Post("/opportunities/addressed", s.markAddressed)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkRequest struct {
	Domain        string   `json:"domain"`
	SiteID        string   `json:"site_id"`
	Plan          string   `json:"plan"`
	Category      string   `json:"category"`
	CustomQueries []string `json:"custom_queries"`
	SingleQuery   string   `json:"single_query"`
}

func (s *Server) runCheck(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Domain) == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	res, err := s.checker.RunCheck(r.Context(), model.CheckRequest{
		Domain:        body.Domain,
		SiteID:        body.SiteID,
		Plan:          model.ParsePlan(body.Plan),
		Category:      body.Category,
		CustomQueries: body.CustomQueries,
		SingleQuery:   strings.TrimSpace(body.SingleQuery),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getScore(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	rs, err := s.reader.GetRunningScore(r.Context(), siteID)
	if err != nil {
		s.internal(w, "get score", siteID, err)
		return
	}
	if rs == nil {
		writeError(w, http.StatusNotFound, "site has no score yet")
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) listCitations(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	out, err := s.reader.ListCitations(r.Context(), siteID, queryLimit(r))
	if err != nil {
		s.internal(w, "list citations", siteID, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	out, err := s.reader.ListSnapshots(r.Context(), siteID, queryLimit(r))
	if err != nil {
		s.internal(w, "list snapshots", siteID, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) listTrust(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	out, err := s.reader.ListTrustListings(r.Context(), siteID)
	if err != nil {
		s.internal(w, "list trust listings", siteID, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) listOpportunities(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	out, err := s.opps.Opportunities(r.Context(), siteID)
	if err != nil {
		s.internal(w, "list opportunities", siteID, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) markAddressed(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if err := s.reader.MarkAddressed(r.Context(), siteID, body.Query); err != nil {
		s.internal(w, "mark addressed", siteID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) internal(w http.ResponseWriter, what, siteID string, err error) {
	zap.L().Error("api: "+what+" failed", zap.String("site_id", siteID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
