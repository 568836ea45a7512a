package provider

import (
	"context"

	"github.com/sells-group/geo-visibility/internal/evidence"
	"github.com/sells-group/geo-visibility/internal/model"
	"github.com/sells-group/geo-visibility/pkg/perplexity"
)

// NewPerplexity returns the citation-link adapter. A nil client yields an
// unconfigured provider.
func NewPerplexity(client perplexity.Client, opts ...Option) Provider {
	ask := func(ctx context.Context, query string) (*answer, error) {
		temp := 0.2
		resp, err := client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages:    []perplexity.Message{{Role: "user", Content: query}},
			Temperature: &temp,
		})
		if err != nil {
			return nil, err
		}
		ans := &answer{body: resp.Content()}
		for _, u := range resp.SourceURLs() {
			ans.sources = append(ans.sources, evidence.Source{URL: u})
		}
		return ans, nil
	}
	return newAdapter(model.PlatformPerplexity, evidence.FamilyCitationLink, client != nil, ask, opts)
}
