// Package gemini is a minimal client for the Gemini generateContent API with
// Google Search grounding.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geo-visibility/internal/resilience"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 30 * time.Second
)

// Client performs grounded content generation.
type Client interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is our own request type; the wire body is built from it.
type GenerateRequest struct {
	Model  string
	Prompt string
	// Grounded enables the google_search tool.
	Grounded bool
}

// GenerateResponse is the response of models/{model}:generateContent.
type GenerateResponse struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content           Content            `json:"content"`
	FinishReason      string             `json:"finishReason"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// Content holds the parts of a message.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a single text part.
type Part struct {
	Text string `json:"text"`
}

// GroundingMetadata lists the retrieved web sources.
type GroundingMetadata struct {
	WebSearchQueries []string         `json:"webSearchQueries,omitempty"`
	GroundingChunks  []GroundingChunk `json:"groundingChunks,omitempty"`
}

// GroundingChunk is one retrieved source.
type GroundingChunk struct {
	Web *WebChunk `json:"web,omitempty"`
}

// WebChunk is a web source. URI is often a redirect URL; Title usually holds
// the source domain.
type WebChunk struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// UsageMetadata reports token consumption.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// Text joins the text parts of the first candidate.
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Chunks returns the web grounding chunks of the first candidate.
func (r *GenerateResponse) Chunks() []WebChunk {
	if r == nil || len(r.Candidates) == 0 || r.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []WebChunk
	for _, c := range r.Candidates[0].GroundingMetadata.GroundingChunks {
		if c.Web != nil {
			out = append(out, *c.Web)
		}
	}
	return out
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a Gemini API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type generateBody struct {
	Contents []Content       `json:"contents"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

func (c *httpClient) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	gb := generateBody{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: req.Prompt}}}},
	}
	if req.Grounded {
		gb.Tools = []map[string]any{{"google_search": map[string]any{}}}
	}

	body, err := json.Marshal(gb)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: marshal request")
	}

	endpoint := c.baseURL + "/models/" + url.PathEscape(model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewStatusError("gemini", resp.StatusCode, respBody)
	}

	var result GenerateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrapf(resilience.ErrMalformedResponse, "gemini: unmarshal response: %v", err)
	}
	if len(result.Candidates) == 0 {
		return nil, eris.Wrap(resilience.ErrMalformedResponse, "gemini: response has no candidates")
	}

	return &result, nil
}
