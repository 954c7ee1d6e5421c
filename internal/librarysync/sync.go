// Package librarysync mirrors media server items into the local library store.
package librarysync

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/jellyfin"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

// ItemSource lists media server items.
type ItemSource interface {
	Items(ctx context.Context, q jellyfin.ItemsQuery) iter.Seq2[jellyfin.Item, error]
	ItemImages(ctx context.Context, itemID string) ([]jellyfin.ImageInfo, error)
}

// ItemUpserter writes items to the local store.
type ItemUpserter interface {
	Upsert(ctx context.Context, item *library.Item) (int64, error)
}

// phases are synced in order so parents exist before their children.
var phases = []library.Kind{
	library.KindFolder,
	library.KindMovie,
	library.KindSeries,
	library.KindSeason,
	library.KindEpisode,
}

// Result summarizes one sync.
type Result struct {
	Upserted   int            `json:"upserted"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	ByKind     map[string]int `json:"byKind"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Syncer pulls items from the media server into the store.
type Syncer struct {
	source          ItemSource
	store           ItemUpserter
	fetchImagePaths bool
	logger          zerolog.Logger
}

// NewSyncer creates a Syncer. With fetchImagePaths each item that has images
// costs one extra request to resolve their file paths.
func NewSyncer(source ItemSource, store ItemUpserter, fetchImagePaths bool, logger zerolog.Logger) *Syncer {
	return &Syncer{
		source:          source,
		store:           store,
		fetchImagePaths: fetchImagePaths,
		logger:          logger.With().Str("task", "library-sync").Logger(),
	}
}

// Run syncs every phase, reporting progress per completed phase. Listing
// errors abort the run; per-item store errors are counted and the last one
// is returned after all phases.
func (s *Syncer) Run(ctx context.Context, report func(percent float64)) (*Result, error) {
	if report == nil {
		report = func(float64) {}
	}

	res := &Result{ByKind: make(map[string]int), StartedAt: time.Now()}
	s.logger.Info().Msg("Starting library sync")

	var lastErr error
	for i, kind := range phases {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, err := s.syncKind(ctx, kind, res)
		if err != nil {
			s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to list items")
			return res, fmt.Errorf("sync %s: %w", kind, err)
		}
		if n.err != nil {
			lastErr = n.err
		}
		res.ByKind[string(kind)] = n.count

		report(float64((i + 1) * 100 / len(phases)))
	}

	res.FinishedAt = time.Now()
	s.logger.Info().
		Int("upserted", res.Upserted).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Library sync completed")

	return res, lastErr
}

type kindResult struct {
	count int
	err   error
}

func (s *Syncer) syncKind(ctx context.Context, kind library.Kind, res *Result) (kindResult, error) {
	var out kindResult

	for remote, err := range s.source.Items(ctx, jellyfin.ItemsQuery{Types: jellyfin.TypesFor(kind)}) {
		if err != nil {
			return out, err
		}

		if _, ok := remote.Kind(); !ok {
			res.Skipped++
			continue
		}

		item := remote.LibraryItem()
		if s.fetchImagePaths && len(item.Images) > 0 {
			infos, err := s.source.ItemImages(ctx, remote.ID)
			if err != nil {
				s.logger.Warn().Err(err).Str("externalId", remote.ID).Msg("Failed to resolve image paths")
			} else {
				item.Images = jellyfin.LibraryImages(infos)
			}
		}

		if _, err := s.store.Upsert(ctx, item); err != nil {
			res.Failed++
			out.err = err
			s.logger.Warn().Err(err).Str("externalId", remote.ID).Str("name", remote.Name).Msg("Failed to store item")
			continue
		}
		res.Upserted++
		out.count++
	}

	s.logger.Debug().Str("kind", string(kind)).Int("count", out.count).Msg("Synced items")
	return out, nil
}
