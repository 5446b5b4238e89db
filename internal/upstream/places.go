// ABOUTME: Rate-limited client for the place provider's v1 text search and detail API.
// ABOUTME: Field masks gate every request; photo URIs are derived from photo resource names.

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/2389/chowline/internal/store"
	"github.com/2389/chowline/internal/tools"
)

// PlacesClient talks to the place provider. All requests pass through a
// shared rate limiter.
type PlacesClient struct {
	http    *resty.Client
	apiKey  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ tools.PlaceSearcher = (*PlacesClient)(nil)

// NewPlacesClient creates a place provider client. rps bounds requests per
// second; zero or negative means 5.
func NewPlacesClient(baseURL, apiKey string, rps float64, logger *slog.Logger) *PlacesClient {
	if logger == nil {
		logger = slog.Default()
	}
	if rps <= 0 {
		rps = 5
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-Goog-Api-Key", apiKey).
		SetHeader("Content-Type", "application/json")

	return &PlacesClient{
		http:    http,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.With("component", "places-client"),
	}
}

// wirePlace is the slice of a place payload the store cares about; the full
// payload is kept verbatim in Place.Data.
type wirePlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	EditorialSummary struct {
		Text string `json:"text"`
	} `json:"editorialSummary"`
	Photos []struct {
		Name string `json:"name"`
	} `json:"photos"`
}

type searchResponse struct {
	Places        []json.RawMessage `json:"places"`
	NextPageToken string            `json:"nextPageToken"`
}

// SearchText runs a text search biased around loc. radius is clamped to
// [0, 50000] meters, limit to [1, 20] results per page. page selects the
// 0-based result page, walking next-page tokens as needed.
func (c *PlacesClient) SearchText(ctx context.Context, query string, loc *store.Location, radius float64, limit, page int) ([]*store.Place, error) {
	fields := make([]string, 0, len(tools.DefaultSearchFields)+1)
	for _, f := range tools.DefaultSearchFields {
		fields = append(fields, "places."+f)
	}
	fields = append(fields, "nextPageToken")

	body := map[string]any{
		"textQuery": query,
		"pageSize":  clampInt(limit, 1, 20),
	}
	if loc != nil {
		body["locationBias"] = map[string]any{
			"circle": map[string]any{
				"center": map[string]any{
					"latitude":  loc.Latitude,
					"longitude": loc.Longitude,
				},
				"radius": clampFloat(radius, 0, 50000),
			},
		}
	}

	var result searchResponse
	for current := 0; ; current++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		// Decoding leaves absent fields untouched, so a token from the
		// previous page would survive into a page that carries none.
		result = searchResponse{}
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-Goog-FieldMask", strings.Join(fields, ",")).
			SetBody(body).
			SetResult(&result).
			Post("/places:searchText")
		if err != nil {
			return nil, fmt.Errorf("place search: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("place search: unexpected status %s", resp.Status())
		}

		c.logger.Debug("search page fetched", "page", current, "results", len(result.Places))
		if current == page {
			break
		}
		if result.NextPageToken == "" {
			c.logger.Warn("no further result pages", "page", current, "requested", page)
			break
		}
		body["pageToken"] = result.NextPageToken
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	places := make([]*store.Place, 0, len(result.Places))
	for _, raw := range result.Places {
		var wp wirePlace
		if err := json.Unmarshal(raw, &wp); err != nil {
			return nil, fmt.Errorf("decoding place: %w", err)
		}
		photos := make([]store.Photo, len(wp.Photos))
		for i, ph := range wp.Photos {
			photos[i] = store.Photo{Name: ph.Name, URI: c.PhotoURL(ph.Name)}
		}
		places = append(places, &store.Place{
			ID:               wp.ID,
			DisplayName:      wp.DisplayName.Text,
			EditorialSummary: wp.EditorialSummary.Text,
			Photos:           photos,
			Data:             raw,
		})
	}
	return places, nil
}

// Detail fetches the requested fields for a single place. Field validation
// happens at the tool layer; this call trusts its input.
func (c *PlacesClient) Detail(ctx context.Context, placeID string, fields []string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Goog-FieldMask", strings.Join(fields, ",")).
		Get("/places/" + placeID)
	if err != nil {
		return nil, fmt.Errorf("place detail: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("place detail: unexpected status %s", resp.Status())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("No data returned for %s", placeID)
	}
	return json.RawMessage(resp.Body()), nil
}

// PhotoURL builds the media URL for a photo resource name, sized for vision
// model input.
func (c *PlacesClient) PhotoURL(photoName string) string {
	return fmt.Sprintf("%s/%s/media?maxHeightPx=400&maxWidthPx=400&key=%s",
		strings.TrimSuffix(c.http.BaseURL, "/"), photoName, url.QueryEscape(c.apiKey))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
