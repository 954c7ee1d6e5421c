package jellyfin

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

// RefreshMarker records refresh requests in the local store.
type RefreshMarker interface {
	MarkRefreshed(ctx context.Context, id int64, t time.Time) error
}

// Refresher asks Jellyfin to refresh items and stamps them locally so the
// cooldown applies from the request time.
type Refresher struct {
	client *Client
	store  RefreshMarker
	logger zerolog.Logger
	now    func() time.Time
}

// NewRefresher creates a Refresher.
func NewRefresher(client *Client, store RefreshMarker, logger zerolog.Logger) *Refresher {
	return &Refresher{
		client: client,
		store:  store,
		logger: logger.With().Str("component", "jellyfin-refresher").Logger(),
		now:    time.Now,
	}
}

// Refresh queues the refresh and marks the item refreshed.
func (r *Refresher) Refresh(ctx context.Context, item *library.Item, opts library.RefreshOptions) error {
	if err := r.client.RefreshItem(ctx, item.ExternalID, opts); err != nil {
		return err
	}

	if err := r.store.MarkRefreshed(ctx, item.ID, r.now()); err != nil {
		return fmt.Errorf("refresh queued but not recorded: %w", err)
	}

	r.logger.Debug().Int64("itemId", item.ID).Str("externalId", item.ExternalID).Msg("Queued item refresh")
	return nil
}
