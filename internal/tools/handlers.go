// ABOUTME: The meal-finding tool pack: handlers bridging tool calls to external collaborators.
// ABOUTME: Argument shapes and result shapes are the fixed contract with the AI service's schema.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/2389/chowline/internal/store"
)

// PlaceSearcher searches the place provider and fetches gated detail fields.
type PlaceSearcher interface {
	// SearchText runs a text search, biased by loc when non-nil. Results
	// carry the provider payload in Place.Data.
	SearchText(ctx context.Context, query string, loc *store.Location, radius float64, limit, page int) ([]*store.Place, error)
	// Detail fetches the requested fields for one place.
	Detail(ctx context.Context, placeID string, fields []string) (json.RawMessage, error)
}

// ReviewFetcher looks up reviews for a stored place.
type ReviewFetcher interface {
	FetchReviews(ctx context.Context, place *store.Place) (any, error)
}

// DomainSearcher runs a content search scoped to one website domain.
type DomainSearcher interface {
	SearchDomain(ctx context.Context, domain, query string) (any, error)
}

// ImageAnalyzer describes a place's photos and answers targeted questions
// about a single photo.
type ImageAnalyzer interface {
	DescribeBatch(ctx context.Context, placeID string) (any, error)
	ExtractInfo(ctx context.Context, placeID string, imageIndex int, query string) (any, error)
}

// Collaborators bundles the external dependencies the meal tool pack needs.
type Collaborators struct {
	Store     store.Store
	Places    PlaceSearcher
	Reviews   ReviewFetcher
	WebSearch DomainSearcher
	Imagery   ImageAnalyzer
	Logger    *slog.Logger
}

// RegisterMealTools registers the meal-finding tool pack on the registry.
func RegisterMealTools(r *Registry, c Collaborators) error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	h := &mealHandlers{c: c, logger: c.Logger.With("component", "meal-tools")}

	pack := []Tool{
		{
			Definition: Definition{
				Name:            "search_places",
				Description:     "Search the map for places matching a query. Include any relevant terms you think are necessary to get a better result. The user's location will be attached to the query",
				InputSchemaJSON: `{"type":"object","properties":{"query":{"type":"string","description":"The search query, e.g. 'pizza in new york'"},"radius":{"type":"number","description":"The search radius in meters (default: 5000). Must be between 0.0 and 50000.0, inclusive"},"limit":{"type":"number","description":"The maximum number of places to return (default: 5). Must be between 0 and 20, inclusive"},"page":{"type":"number","description":"The page of results to retrieve. The default is 0"}},"required":["query"]}`,
			},
			Handler: h.SearchPlaces,
		},
		{
			Definition: Definition{
				Name:            "describe_place",
				Description:     "Describe a place with the given place_id, returning the requested fields",
				InputSchemaJSON: `{"type":"object","properties":{"place_id":{"type":"string","description":"The place id"},"fields":{"type":"array","description":"A list of fields to return from the known available fields (e.g. takeout)","items":{"type":"string"}}},"required":["place_id","fields"]}`,
			},
			Handler: h.DescribePlace,
		},
		{
			Definition: Definition{
				Name:            "describe_images",
				Description:     "Apply a short description to each of a place's images (use this to determine which images have menus associated)",
				InputSchemaJSON: `{"type":"object","properties":{"place_id":{"type":"string","description":"The place id"}},"required":["place_id"]}`,
			},
			Handler: h.DescribeImages,
		},
		{
			Definition: Definition{
				Name:            "extract_image_info",
				Description:     "Extract information from one of a place's images (use this to tell what items a restaurant has)",
				InputSchemaJSON: `{"type":"object","properties":{"image_index":{"type":"number","description":"The index of an image from the place's image list"},"place_id":{"type":"string","description":"The place id"},"query":{"type":"string","description":"A question you want answered about the image (e.g. what are all the items on the menu)"}},"required":["image_index","place_id","query"]}`,
			},
			Handler: h.ExtractImageInfo,
		},
		{
			Definition: Definition{
				Name:            "fetch_chat_history",
				Description:     "Fetch all chat data so far (use sparingly and only when necessary to avoid processing a lot of data)",
				InputSchemaJSON: `{"type":"object","properties":{},"required":[]}`,
			},
			Handler: h.FetchChatHistory,
		},
		{
			Definition: Definition{
				Name:            "get_stored_places",
				Description:     "Retrieve all stored places for this chat, returning place_id and editorial summary",
				InputSchemaJSON: `{"type":"object","properties":{},"required":[]}`,
			},
			Handler: h.GetStoredPlaces,
		},
		{
			Definition: Definition{
				Name:            "get_reviews",
				Description:     "Get reviews and ratings for a place found earlier. Use this for additional customer feedback",
				InputSchemaJSON: `{"type":"object","properties":{"place_id":{"type":"string","description":"The place id to get reviews for"}},"required":["place_id"]}`,
			},
			Handler: h.GetReviews,
		},
		{
			Definition: Definition{
				Name:            "get_user_location",
				Description:     "Get the location of the user chatting with you",
				InputSchemaJSON: `{"type":"object","properties":{},"required":[]}`,
			},
			Handler: h.GetUserLocation,
		},
		{
			Definition: Definition{
				Name:            "search_website",
				Description:     "Search a specific website's content for information. Use this to find menu items, business hours, or other details from a business's website",
				InputSchemaJSON: `{"type":"object","properties":{"domain":{"type":"string","description":"The website domain to search (e.g. 'restaurant.com')"},"query":{"type":"string","description":"What to search for on the website (e.g. 'lunch menu', 'business hours')"}},"required":["domain","query"]}`,
			},
			Handler: h.SearchWebsite,
		},
	}

	for _, tool := range pack {
		if err := r.Register(tool.Definition, tool.Handler); err != nil {
			return err
		}
	}
	return nil
}

type mealHandlers struct {
	c      Collaborators
	logger *slog.Logger
}

type searchPlacesInput struct {
	Query  string  `json:"query"`
	Radius float64 `json:"radius"`
	Limit  int     `json:"limit"`
	Page   int     `json:"page"`
}

func (h *mealHandlers) SearchPlaces(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	var in searchPlacesInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if in.Radius == 0 {
		in.Radius = 5000
	}
	if in.Limit == 0 {
		in.Limit = 5
	}

	var loc *store.Location
	if chat, err := h.c.Store.GetChat(ctx, chatID); err != nil {
		return nil, err
	} else if chat != nil {
		loc = chat.Location
	}

	places, err := h.c.Places.SearchText(ctx, in.Query, loc, in.Radius, in.Limit, in.Page)
	if err != nil {
		return nil, err
	}

	if len(places) > 0 {
		if err := h.c.Store.SavePlaces(ctx, places); err != nil {
			return nil, err
		}
		ids := make([]string, len(places))
		for i, p := range places {
			ids[i] = p.ID
		}
		if err := h.c.Store.AppendChatPlaces(ctx, chatID, ids); err != nil {
			return nil, err
		}
	}

	// Photo payloads are large and useless to the model; strip them.
	results := make([]map[string]any, 0, len(places))
	for _, p := range places {
		var payload map[string]any
		if err := json.Unmarshal(p.Data, &payload); err != nil {
			return nil, fmt.Errorf("decoding place payload for %s: %w", p.ID, err)
		}
		delete(payload, "photos")
		results = append(results, payload)
	}
	return results, nil
}

type describePlaceInput struct {
	PlaceID string   `json:"place_id"`
	Fields  []string `json:"fields"`
}

func (h *mealHandlers) DescribePlace(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	var in describePlaceInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if invalid := invalidFields(in.Fields); len(invalid) > 0 {
		return nil, fmt.Errorf("%s", formatInvalidFields(invalid))
	}

	detail, err := h.c.Places.Detail(ctx, in.PlaceID, in.Fields)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

type describeImagesInput struct {
	PlaceID string `json:"place_id"`
}

func (h *mealHandlers) DescribeImages(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	var in describeImagesInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return h.c.Imagery.DescribeBatch(ctx, in.PlaceID)
}

type extractImageInfoInput struct {
	ImageIndex int    `json:"image_index"`
	PlaceID    string `json:"place_id"`
	Query      string `json:"query"`
}

func (h *mealHandlers) ExtractImageInfo(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	var in extractImageInfoInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return h.c.Imagery.ExtractInfo(ctx, in.PlaceID, in.ImageIndex, in.Query)
}

func (h *mealHandlers) FetchChatHistory(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	chat, err := h.c.Store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return map[string]any{}, nil
	}
	return chat, nil
}

func (h *mealHandlers) GetStoredPlaces(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	chat, err := h.c.Store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fmt.Errorf("No chat data for %s", chatID)
	}

	summaries := make([]*store.PlaceSummary, 0, len(chat.PlaceIDs))
	for _, placeID := range chat.PlaceIDs {
		summary, err := h.c.Store.GetPlaceSummary(ctx, placeID)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			h.logger.Warn("chat references unknown place", "chat_id", chatID, "place_id", placeID)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

type getReviewsInput struct {
	PlaceID string `json:"place_id"`
}

func (h *mealHandlers) GetReviews(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	var in getReviewsInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	place, err := h.c.Store.GetPlace(ctx, in.PlaceID)
	if err != nil {
		return nil, err
	}
	if place == nil {
		return nil, fmt.Errorf("No place data found for place_id: %s", in.PlaceID)
	}
	return h.c.Reviews.FetchReviews(ctx, place)
}

func (h *mealHandlers) GetUserLocation(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	chat, err := h.c.Store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil || chat.Location == nil {
		return map[string]any{}, nil
	}
	return chat.Location, nil
}

type searchWebsiteInput struct {
	Domain string `json:"domain"`
	Query  string `json:"query"`
}

func (h *mealHandlers) SearchWebsite(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
	var in searchWebsiteInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.Domain == "" || in.Query == "" {
		return nil, fmt.Errorf("both domain and query parameters are required")
	}
	return h.c.WebSearch.SearchDomain(ctx, in.Domain, in.Query)
}
