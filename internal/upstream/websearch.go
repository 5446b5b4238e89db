// ABOUTME: Client for the content search provider, scoped to a single domain per query.
// ABOUTME: Returns the plain text of matching pages for the AI service to digest.

package upstream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"github.com/2389/chowline/internal/tools"
)

// WebSearchClient searches a website's indexed content.
type WebSearchClient struct {
	http   *resty.Client
	logger *slog.Logger
}

var _ tools.DomainSearcher = (*WebSearchClient)(nil)

// NewWebSearchClient creates a content search client.
func NewWebSearchClient(baseURL, apiKey string, logger *slog.Logger) *WebSearchClient {
	if logger == nil {
		logger = slog.Default()
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("x-api-key", apiKey).
		SetHeader("Content-Type", "application/json")

	return &WebSearchClient{
		http:   http,
		logger: logger.With("component", "websearch-client"),
	}
}

type contentSearchResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
}

// SearchDomain searches the domain's content and returns the matched page
// texts with a count. No matches is an empty result, not an error.
func (c *WebSearchClient) SearchDomain(ctx context.Context, domain, query string) (any, error) {
	var result contentSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"query":          query,
			"type":           "auto",
			"includeDomains": []string{domain},
			"contents":       map[string]any{"text": true},
		}).
		SetResult(&result).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("content search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("content search: unexpected status %s", resp.Status())
	}

	texts := make([]string, 0, len(result.Results))
	for _, item := range result.Results {
		if item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	c.logger.Info("domain search complete", "domain", domain, "results", len(texts))
	return map[string]any{
		"results": texts,
		"count":   len(texts),
	}, nil
}
