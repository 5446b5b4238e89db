// ABOUTME: Concurrent batch analysis of a place's photos via a vision model.
// ABOUTME: Bounded worker fan-out with a batch deadline; per-photo failures never sink the batch.

package imagery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/chowline/internal/store"
)

// Describer answers vision questions about a single photo.
type Describer interface {
	// DescribePhoto produces a short one-line description of the photo.
	DescribePhoto(ctx context.Context, uri string) (string, error)
	// ExtractFromPhoto answers a targeted question about the photo.
	ExtractFromPhoto(ctx context.Context, uri, query string) (string, error)
}

// PhotoDescription is one entry of a batch result, addressable by index in
// follow-up extraction calls.
type PhotoDescription struct {
	Index       int    `json:"index"`
	URI         string `json:"uri"`
	Description string `json:"description"`
}

// Analyzer runs photo description batches for stored places.
type Analyzer struct {
	store        store.Store
	describer    Describer
	workers      int
	batchTimeout time.Duration
	logger       *slog.Logger
}

// NewAnalyzer creates an Analyzer. workers bounds concurrent vision calls
// per batch; batchTimeout caps the whole batch.
func NewAnalyzer(st store.Store, d Describer, workers int, batchTimeout time.Duration, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 5
	}
	if batchTimeout <= 0 {
		batchTimeout = 2 * time.Minute
	}
	return &Analyzer{
		store:        st,
		describer:    d,
		workers:      workers,
		batchTimeout: batchTimeout,
		logger:       logger.With("component", "imagery"),
	}
}

// DescribeBatch describes every not-yet-described photo of the place and
// persists the results. Photos that already carry a description are served
// from the store without a vision call. The returned slice always covers
// every photo of the place, in stored order.
func (a *Analyzer) DescribeBatch(ctx context.Context, placeID string) (any, error) {
	place, err := a.store.GetPlace(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if place == nil {
		return nil, fmt.Errorf("No place data found for place_id: %s", placeID)
	}
	if len(place.Photos) == 0 {
		return []PhotoDescription{}, nil
	}

	photos := make([]store.Photo, len(place.Photos))
	copy(photos, place.Photos)

	batchCtx, cancel := context.WithTimeout(ctx, a.batchTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(a.workers)

	start := time.Now()
	pending := 0
	for i := range photos {
		if photos[i].Description != "" {
			continue
		}
		pending++
		i := i
		g.Go(func() error {
			desc, err := a.describer.DescribePhoto(gctx, photos[i].URI)
			if err != nil {
				// A failed or timed-out photo keeps its slot; the
				// error text stands in for the description so the
				// batch result stays index-addressable.
				a.logger.Warn("photo description failed",
					"place_id", placeID,
					"index", i,
					"error", err,
				)
				photos[i].Description = fmt.Sprintf("Error describing image: %v", err)
				return nil
			}
			photos[i].Description = desc
			return nil
		})
	}
	// Workers record their own failures; Wait only orders the writes.
	_ = g.Wait()

	if pending > 0 {
		a.logger.Info("photo batch complete",
			"place_id", placeID,
			"described", pending,
			"total", len(photos),
			"elapsed", time.Since(start),
		)
		if err := a.store.SetPlacePhotos(ctx, placeID, photos); err != nil {
			return nil, err
		}
	}

	results := make([]PhotoDescription, len(photos))
	for i, p := range photos {
		results[i] = PhotoDescription{Index: i, URI: p.URI, Description: p.Description}
	}
	return results, nil
}

// ExtractInfo answers a targeted question about one photo, addressed by its
// index in the place's photo list.
func (a *Analyzer) ExtractInfo(ctx context.Context, placeID string, imageIndex int, query string) (any, error) {
	place, err := a.store.GetPlace(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if place == nil {
		return nil, fmt.Errorf("No place data found for place_id: %s", placeID)
	}
	if imageIndex < 0 || imageIndex >= len(place.Photos) {
		return nil, fmt.Errorf("image_index %d out of range: place has %d images", imageIndex, len(place.Photos))
	}

	answer, err := a.describer.ExtractFromPhoto(ctx, place.Photos[imageIndex].URI, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"index":  imageIndex,
		"answer": answer,
	}, nil
}
