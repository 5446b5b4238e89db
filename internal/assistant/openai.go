// ABOUTME: HTTP client for the OpenAI Assistants v2 API and assistant provisioning.
// ABOUTME: The assistant id is cached on disk so restarts reuse the provisioned assistant.

package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-resty/resty/v2"

	"github.com/2389/chowline/internal/tools"
)

const instructions = "You are a meal finding assistant. Your goal is to take all the information you have to help the user find meals." +
	"Avoid naming the underlying map, review, and search services by name. Additionally, please provide links as citations\n" +
	"Avoid saying that there were issues with the service. Instead say there was no information available\n" +
	"Unless requested, provide an opinionated choice on a single restaurant instead of listing restaurants that you found\n" +
	"When displaying map images, just provide a link instead of displaying it inline\n" +
	"Here are some common requests:\n" +
	"1. To find restaurants use search_places\n" +
	"2. To get menus do the search_website tool and describe the images to see if there are any menu images\n" +
	"3. To look at ratings, use the describe_place tool with ratings and use the get_reviews tool\n" +
	"4. Use the extract_image_info tool to get more information about an image after using the describe_images tool\n" +
	"5. Use the fetch_chat_history tool if you need a reminder of what happened in the conversation earlier"

// OpenAIClient implements Client against the Assistants v2 REST API.
type OpenAIClient struct {
	http   *resty.Client
	model  string
	logger *slog.Logger
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the given API base URL and key.
func NewOpenAIClient(baseURL, apiKey, model string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("OpenAI-Beta", "assistants=v2").
		SetHeader("Content-Type", "application/json")

	return &OpenAIClient{
		http:   http,
		model:  model,
		logger: logger.With("component", "openai-client"),
	}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		var apiErr apiError
		if jsonErr := json.Unmarshal(resp.Body(), &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s: %s (%s)", op, apiErr.Error.Message, resp.Status())
		}
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status())
	}
	return nil
}

type assistantCache struct {
	AssistantID string `json:"assistant_id"`
}

// EnsureAssistant returns a usable assistant id, provisioning a new assistant
// with the registry's tool definitions when no cached one survives. The id is
// cached in cacheFile across restarts; a stale cached id falls through to
// provisioning.
func (c *OpenAIClient) EnsureAssistant(ctx context.Context, cacheFile string, defs []tools.Definition) (string, error) {
	if data, err := os.ReadFile(cacheFile); err == nil {
		var cache assistantCache
		if err := json.Unmarshal(data, &cache); err == nil && cache.AssistantID != "" {
			resp, err := c.http.R().SetContext(ctx).Get("/assistants/" + cache.AssistantID)
			if err == nil && resp.IsSuccess() {
				c.logger.Info("reusing cached assistant", "assistant_id", cache.AssistantID)
				return cache.AssistantID, nil
			}
			c.logger.Warn("cached assistant not found, provisioning a new one",
				"assistant_id", cache.AssistantID)
		}
	}

	toolSpecs := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		toolSpecs = append(toolSpecs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  json.RawMessage(def.InputSchemaJSON),
			},
		})
	}

	var created struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"instructions": instructions,
			"model":        c.model,
			"tools":        toolSpecs,
		}).
		SetResult(&created).
		Post("/assistants")
	if err := c.check(resp, err, "creating assistant"); err != nil {
		return "", err
	}
	c.logger.Info("provisioned assistant", "assistant_id", created.ID, "model", c.model)

	cacheData, _ := json.Marshal(assistantCache{AssistantID: created.ID})
	if err := os.WriteFile(cacheFile, cacheData, 0o644); err != nil {
		c.logger.Error("failed to cache assistant id", "path", cacheFile, "error", err)
	}
	return created.ID, nil
}

func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{}).
		SetResult(&created).
		Post("/threads")
	if err := c.check(resp, err, "creating thread"); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *OpenAIClient) AddUserMessage(ctx context.Context, threadID, text string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"role": "user", "content": text}).
		Post(fmt.Sprintf("/threads/%s/messages", threadID))
	return c.check(resp, err, "adding user message")
}

// runEnvelope is the wire shape of a run object, reduced to what the
// orchestrator consumes.
type runEnvelope struct {
	ID             string    `json:"id"`
	Status         RunStatus `json:"status"`
	RequiredAction *struct {
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
}

func (e *runEnvelope) toRun() *Run {
	run := &Run{ID: e.ID, Status: e.Status}
	if e.RequiredAction != nil {
		for _, tc := range e.RequiredAction.SubmitToolOutputs.ToolCalls {
			run.ToolCalls = append(run.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
	}
	return run
}

func (c *OpenAIClient) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	var envelope runEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"assistant_id": assistantID}).
		SetResult(&envelope).
		Post(fmt.Sprintf("/threads/%s/runs", threadID))
	if err := c.check(resp, err, "creating run"); err != nil {
		return nil, err
	}
	return envelope.toRun(), nil
}

func (c *OpenAIClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var envelope runEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(fmt.Sprintf("/threads/%s/runs/%s", threadID, runID))
	if err := c.check(resp, err, "retrieving run"); err != nil {
		return nil, err
	}
	return envelope.toRun(), nil
}

func (c *OpenAIClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"tool_outputs": outputs}).
		Post(fmt.Sprintf("/threads/%s/runs/%s/submit_tool_outputs", threadID, runID))
	return c.check(resp, err, "submitting tool outputs")
}

func (c *OpenAIClient) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var listing struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("order", "desc").
		SetResult(&listing).
		Get(fmt.Sprintf("/threads/%s/messages", threadID))
	if err := c.check(resp, err, "listing messages"); err != nil {
		return "", err
	}

	for _, msg := range listing.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Type == "text" {
				return part.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("no assistant message on thread %s", threadID)
}
