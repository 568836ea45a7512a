package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geo-visibility/internal/resilience"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantMalformed bool
		wantID        string
		wantCitations int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "cmpl-123",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Acme is a CRM."}}],
				"citations": ["https://acme.io/about", "https://g2.com/products/acme"],
				"search_results": [{"title": "Acme", "url": "https://acme.io/about"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5}
			}`,
			wantID:        "cmpl-123",
			wantCitations: 2,
		},
		{
			name:    "rate_limit",
			status:  http.StatusTooManyRequests,
			body:    `{"error": "rate limit exceeded"}`,
			wantErr: "unexpected status 429",
		},
		{
			name:    "server_error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "internal server error"}`,
			wantErr: "unexpected status 500",
		},
		{
			name:          "malformed_response",
			status:        http.StatusOK,
			body:          `{invalid json`,
			wantErr:       "unmarshal response",
			wantMalformed: true,
		},
		{
			name:          "no_choices",
			status:        http.StatusOK,
			body:          `{"id": "x", "choices": []}`,
			wantErr:       "no choices",
			wantMalformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))

			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "Hi"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantMalformed, errors.Is(err, resilience.ErrMalformedResponse))
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantID, resp.ID)
			assert.Equal(t, "Acme is a CRM.", resp.Content())
			assert.Len(t, resp.Citations, tt.wantCitations)
			assert.Equal(t, 5, resp.Usage.CompletionTokens)
		})
	}
}

func TestStatusErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestDefaultModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "sonar", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.NoError(t, err)
}

func TestWithModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "sonar-pro", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}],"usage":{}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithModel("sonar-pro"))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "test"}},
	})
	require.NoError(t, err)
}

func TestWithTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.True(t, resilience.IsTimeout(err))
}

func TestSourceURLs_CitationsOnly(t *testing.T) {
	resp := &ChatCompletionResponse{
		Citations: []string{"https://a.com", "https://b.com", "https://a.com"},
		SearchResults: []SearchResult{
			{URL: "https://b.com"},
			{URL: "https://c.com"},
		},
	}
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, resp.SourceURLs())

	var nilResp *ChatCompletionResponse
	assert.Nil(t, nilResp.SourceURLs())
	assert.Equal(t, "", nilResp.Content())
}

func TestSourceURLs_FallsBackToSearchResults(t *testing.T) {
	resp := &ChatCompletionResponse{
		SearchResults: []SearchResult{
			{URL: "https://c.com"},
			{URL: ""},
			{URL: "https://c.com"},
			{URL: "https://d.com"},
		},
	}
	assert.Equal(t, []string{"https://c.com", "https://d.com"}, resp.SourceURLs())
	assert.Nil(t, (&ChatCompletionResponse{}).SourceURLs())
}
