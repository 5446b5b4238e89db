// ABOUTME: Vision model client: downloads a photo, base64-encodes it, and asks the model about it.
// ABOUTME: A small model handles bulk descriptions; a larger one answers targeted questions.

package upstream

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/2389/chowline/internal/imagery"
)

const describePrompt = "Describe this image succinctly."

// VisionClient runs image questions against a hosted vision model.
type VisionClient struct {
	http       *resty.Client
	download   *resty.Client
	microModel string
	proModel   string
	logger     *slog.Logger
}

var _ imagery.Describer = (*VisionClient)(nil)

// NewVisionClient creates a vision model client. microModel serves the bulk
// description path, proModel the targeted extraction path.
func NewVisionClient(baseURL, apiKey, microModel, proModel string, logger *slog.Logger) *VisionClient {
	if logger == nil {
		logger = slog.Default()
	}
	api := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	return &VisionClient{
		http:       api,
		download:   resty.New(),
		microModel: microModel,
		proModel:   proModel,
		logger:     logger.With("component", "vision-client"),
	}
}

// DescribePhoto produces a one-line description of the photo using the small
// model.
func (c *VisionClient) DescribePhoto(ctx context.Context, uri string) (string, error) {
	return c.ask(ctx, c.microModel, uri, describePrompt)
}

// ExtractFromPhoto answers a targeted question about the photo using the
// larger model.
func (c *VisionClient) ExtractFromPhoto(ctx context.Context, uri, query string) (string, error) {
	return c.ask(ctx, c.proModel, uri, query)
}

type visionResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *VisionClient) ask(ctx context.Context, model, uri, prompt string) (string, error) {
	data, mediaType, err := c.fetchImage(ctx, uri)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "image",
						"source": map[string]any{
							"type":       "base64",
							"media_type": mediaType,
							"data":       base64.StdEncoding.EncodeToString(data),
						},
					},
					{"type": "text", "text": prompt},
				},
			},
		},
	}

	var result visionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/model/%s/invoke", model))
	if err != nil {
		return "", fmt.Errorf("invoking vision model: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("invoking vision model: unexpected status %s", resp.Status())
	}

	if len(result.Content) == 0 || result.Content[0].Text == "" {
		return "No description returned.", nil
	}
	return result.Content[0].Text, nil
}

func (c *VisionClient) fetchImage(ctx context.Context, uri string) ([]byte, string, error) {
	resp, err := c.download.R().SetContext(ctx).Get(uri)
	if err != nil {
		return nil, "", fmt.Errorf("downloading image: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("downloading image: unexpected status %s", resp.Status())
	}

	body := resp.Body()
	mediaType := resp.Header().Get("Content-Type")
	if mediaType == "" {
		mediaType = http.DetectContentType(body)
	}
	return body, mediaType, nil
}
