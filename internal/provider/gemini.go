package provider

import (
	"context"

	"github.com/sells-group/geo-visibility/internal/evidence"
	"github.com/sells-group/geo-visibility/internal/model"
	"github.com/sells-group/geo-visibility/pkg/gemini"
)

// NewGemini returns the grounded-retrieval adapter. A nil client yields an
// unconfigured provider.
func NewGemini(client gemini.Client, opts ...Option) Provider {
	ask := func(ctx context.Context, query string) (*answer, error) {
		resp, err := client.GenerateContent(ctx, gemini.GenerateRequest{Prompt: query, Grounded: true})
		if err != nil {
			return nil, err
		}
		ans := &answer{body: resp.Text()}
		for _, c := range resp.Chunks() {
			ans.sources = append(ans.sources, evidence.Source{URL: c.URI, Title: c.Title})
		}
		return ans, nil
	}
	return newAdapter(model.PlatformGemini, evidence.FamilyGrounded, client != nil, ask, opts)
}
