// ABOUTME: Tests for the place provider client
// ABOUTME: Uses a local HTTP server; covers clamping, location bias, field masks, and photo URLs

package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chowline/internal/store"
)

func TestSearchText_RequestShape(t *testing.T) {
	var gotBody map[string]any
	var gotMask string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/places:searchText", r.URL.Path)
		gotMask = r.Header.Get("X-Goog-FieldMask")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"places":[{"id":"p1","displayName":{"text":"Taco Spot"},"editorialSummary":{"text":"cozy"},"photos":[{"name":"places/p1/photos/ph1"}]}]}`))
	}))
	defer srv.Close()

	c := NewPlacesClient(srv.URL, "test-key", 100, nil)
	loc := &store.Location{Latitude: 40.7, Longitude: -74.0}

	places, err := c.SearchText(context.Background(), "tacos", loc, 99999, 50, 0)
	require.NoError(t, err)

	// Clamps: radius to 50000, page size to 20
	bias := gotBody["locationBias"].(map[string]any)["circle"].(map[string]any)
	assert.Equal(t, float64(50000), bias["radius"])
	assert.Equal(t, float64(20), gotBody["pageSize"])
	assert.Equal(t, "tacos", gotBody["textQuery"])

	assert.Contains(t, gotMask, "places.displayName")
	assert.Contains(t, gotMask, "nextPageToken")

	require.Len(t, places, 1)
	assert.Equal(t, "p1", places[0].ID)
	assert.Equal(t, "Taco Spot", places[0].DisplayName)
	assert.Equal(t, "cozy", places[0].EditorialSummary)
	require.Len(t, places[0].Photos, 1)
	assert.Contains(t, places[0].Photos[0].URI, "places/p1/photos/ph1/media")
	assert.Contains(t, places[0].Photos[0].URI, "maxHeightPx=400")
}

func TestSearchText_NoLocationOmitsBias(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"places":[]}`))
	}))
	defer srv.Close()

	c := NewPlacesClient(srv.URL, "test-key", 100, nil)
	places, err := c.SearchText(context.Background(), "tacos", nil, 5000, 5, 0)
	require.NoError(t, err)

	assert.Empty(t, places)
	assert.NotContains(t, gotBody, "locationBias")
}

func TestSearchText_PaginationStopsWithoutToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"places":[{"id":"p1"}]}`))
	}))
	defer srv.Close()

	c := NewPlacesClient(srv.URL, "test-key", 100, nil)
	places, err := c.SearchText(context.Background(), "tacos", nil, 5000, 5, 3)
	require.NoError(t, err)

	// No nextPageToken means the walk ends after the first page
	assert.Equal(t, 1, calls)
	assert.Len(t, places, 1)
}

func TestSearchText_StopsWhenTokenDisappearsMidWalk(t *testing.T) {
	calls := 0
	var gotTokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		tok, _ := body["pageToken"].(string)
		gotTokens = append(gotTokens, tok)
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Write([]byte(`{"places":[{"id":"p1"}],"nextPageToken":"tok-1"}`))
			return
		}
		w.Write([]byte(`{"places":[{"id":"p2"}]}`))
	}))
	defer srv.Close()

	c := NewPlacesClient(srv.URL, "test-key", 100, nil)
	places, err := c.SearchText(context.Background(), "tacos", nil, 5000, 5, 2)
	require.NoError(t, err)

	// The second page has no token: the walk ends there instead of
	// re-sending tok-1 for the requested third page
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"", "tok-1"}, gotTokens)
	require.Len(t, places, 1)
	assert.Equal(t, "p2", places[0].ID)
}

func TestDetail_SendsFieldMask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places/p1", r.URL.Path)
		assert.Equal(t, "takeout,rating", r.Header.Get("X-Goog-FieldMask"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"takeout":true,"rating":4.5}`))
	}))
	defer srv.Close()

	c := NewPlacesClient(srv.URL, "test-key", 100, nil)
	detail, err := c.Detail(context.Background(), "p1", []string{"takeout", "rating"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"takeout":true,"rating":4.5}`, string(detail))
}

func TestDetail_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewPlacesClient(srv.URL, "test-key", 100, nil)
	_, err := c.Detail(context.Background(), "p1", []string{"takeout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
