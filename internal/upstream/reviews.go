// ABOUTME: Client for the review provider: business match by name and location, then reviews.
// ABOUTME: Matching uses the stored place payload; a place without coordinates cannot be matched.

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"github.com/2389/chowline/internal/store"
	"github.com/2389/chowline/internal/tools"
)

// ReviewsClient looks up third-party ratings and review text for places.
type ReviewsClient struct {
	http   *resty.Client
	logger *slog.Logger
}

var _ tools.ReviewFetcher = (*ReviewsClient)(nil)

// NewReviewsClient creates a review provider client.
func NewReviewsClient(baseURL, apiKey string, logger *slog.Logger) *ReviewsClient {
	if logger == nil {
		logger = slog.Default()
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey)

	return &ReviewsClient{
		http:   http,
		logger: logger.With("component", "reviews-client"),
	}
}

// placeIdentity is the slice of a stored place payload needed to match a
// business on the review provider.
type placeIdentity struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

type businessSearchResponse struct {
	Businesses []struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		Rating      float64 `json:"rating"`
		ReviewCount int     `json:"review_count"`
	} `json:"businesses"`
}

type reviewListing struct {
	Reviews []struct {
		Text string `json:"text"`
	} `json:"reviews"`
}

// FetchReviews matches the place against the review provider and returns its
// rating, review count, and review texts.
func (c *ReviewsClient) FetchReviews(ctx context.Context, place *store.Place) (any, error) {
	var identity placeIdentity
	if err := json.Unmarshal(place.Data, &identity); err != nil {
		return nil, fmt.Errorf("decoding place payload: %w", err)
	}
	if identity.Location == nil {
		return nil, fmt.Errorf("place has no location data")
	}
	if identity.DisplayName.Text == "" {
		return nil, fmt.Errorf("place has no display name")
	}

	var search businessSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"term":      identity.DisplayName.Text,
			"sort_by":   "best_match",
			"limit":     "1",
			"latitude":  fmt.Sprintf("%f", identity.Location.Latitude),
			"longitude": fmt.Sprintf("%f", identity.Location.Longitude),
		}).
		SetResult(&search).
		Get("/businesses/search")
	if err != nil {
		return nil, fmt.Errorf("business search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("business search: unexpected status %s", resp.Status())
	}
	if len(search.Businesses) == 0 {
		return nil, fmt.Errorf("no businesses found matching '%s'", identity.DisplayName.Text)
	}

	business := search.Businesses[0]
	c.logger.Info("matched business",
		"place_id", place.ID,
		"business_id", business.ID,
		"name", business.Name,
	)

	result := map[string]any{
		"rating":       business.Rating,
		"review_count": business.ReviewCount,
	}

	var listing reviewListing
	resp, err = c.http.R().
		SetContext(ctx).
		SetResult(&listing).
		Get("/businesses/" + business.ID + "/reviews")
	if err != nil {
		return nil, fmt.Errorf("fetching reviews: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching reviews: unexpected status %s", resp.Status())
	}

	texts := make([]string, 0, len(listing.Reviews))
	for _, r := range listing.Reviews {
		texts = append(texts, r.Text)
	}
	result["reviews"] = texts
	return result, nil
}
