package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Hand-edited rows.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// Store provides access to library items in SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a new library store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// QueryItems streams the items matching q. The sequence runs the query when
// ranged over and stops at the first error.
func (s *Store) QueryItems(ctx context.Context, q Query) iter.Seq2[*Item, error] {
	return func(yield func(*Item, error) bool) {
		query, args, err := q.build()
		if err != nil {
			yield(nil, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query items: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate items: %w", err))
		}
	}
}

// Get retrieves an item by its local ID.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items i WHERE i.id = ?", id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// Upsert inserts or updates an item keyed by ExternalID, replacing its
// provider ids and images. A nil LastRefreshedAt keeps the stored value and a
// zero CreatedAt keeps the stored creation date, defaulting to now on insert.
func (s *Store) Upsert(ctx context.Context, item *Item) (int64, error) {
	if item.ExternalID == "" || item.Kind == "" {
		return 0, fmt.Errorf("%w: external id and kind are required", ErrInvalidItem)
	}

	sortName := item.SortName
	if sortName == "" {
		sortName = item.Name
	}
	createdAt := item.CreatedAt
	keepCreated := createdAt.IsZero()
	if keepCreated {
		createdAt = time.Now()
	}

	var parentID any
	if item.ParentID != nil {
		parentID = *item.ParentID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO items (external_id, parent_id, kind, name, sort_name, overview, is_virtual,
			premiere_date, created_at, last_refreshed_at)
		VALUES (?, COALESCE(?, (SELECT id FROM items WHERE external_id = ?)), ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			kind = excluded.kind,
			name = excluded.name,
			sort_name = excluded.sort_name,
			overview = excluded.overview,
			is_virtual = excluded.is_virtual,
			premiere_date = excluded.premiere_date,
			created_at = CASE WHEN ? THEN items.created_at ELSE excluded.created_at END,
			last_refreshed_at = COALESCE(excluded.last_refreshed_at, items.last_refreshed_at)
		RETURNING id`,
		item.ExternalID, parentID, item.ParentExternalID, string(item.Kind), item.Name, sortName,
		item.Overview, item.IsVirtual, nullableTime(item.PremiereDate), formatTime(createdAt),
		nullableTime(item.LastRefreshedAt), keepCreated,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert item %q: %w", item.ExternalID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM item_provider_ids WHERE item_id = ?", id); err != nil {
		return 0, fmt.Errorf("failed to clear provider ids: %w", err)
	}
	for provider, value := range item.ProviderIDs {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO item_provider_ids (item_id, provider, value) VALUES (?, ?, ?)",
			id, provider, value,
		); err != nil {
			return 0, fmt.Errorf("failed to insert provider id %s: %w", provider, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM item_images WHERE item_id = ?", id); err != nil {
		return 0, fmt.Errorf("failed to clear images: %w", err)
	}
	for _, img := range item.Images {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO item_images (item_id, image_type, path, remote) VALUES (?, ?, ?, ?)",
			id, string(img.Type), img.Path, img.Remote,
		); err != nil {
			return 0, fmt.Errorf("failed to insert image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit item %q: %w", item.ExternalID, err)
	}

	item.ID = id
	s.logger.Trace().Int64("itemId", id).Str("externalId", item.ExternalID).Str("kind", string(item.Kind)).Msg("Upserted item")
	return id, nil
}

// MarkRefreshed records that a refresh was requested for the item at t.
func (s *Store) MarkRefreshed(ctx context.Context, id int64, t time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE items SET last_refreshed_at = ? WHERE id = ?", formatTime(t), id)
	if err != nil {
		return fmt.Errorf("failed to mark item %d refreshed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark item %d refreshed: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByKind returns the number of items per kind.
func (s *Store) CountByKind(ctx context.Context) (map[Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM items GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan item count: %w", err)
		}
		counts[Kind(kind)] = count
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

type imageRow struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Remote int    `json:"remote"`
}

func scanItem(row scanner) (*Item, error) {
	var (
		item          Item
		parentID      sql.NullInt64
		kind          string
		premiereDate  sql.NullString
		createdAt     string
		lastRefreshed sql.NullString
		providersJSON sql.NullString
		imagesJSON    sql.NullString
	)

	err := row.Scan(
		&item.ID, &item.ExternalID, &parentID, &kind, &item.Name, &item.SortName, &item.Overview,
		&item.IsVirtual, &premiereDate, &createdAt, &lastRefreshed, &providersJSON, &imagesJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.Kind = Kind(kind)
	if parentID.Valid {
		item.ParentID = &parentID.Int64
	}

	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("item %d: bad created_at: %w", item.ID, err)
	}
	if premiereDate.Valid {
		t, err := parseTime(premiereDate.String)
		if err != nil {
			return nil, fmt.Errorf("item %d: bad premiere_date: %w", item.ID, err)
		}
		item.PremiereDate = &t
	}
	if lastRefreshed.Valid {
		t, err := parseTime(lastRefreshed.String)
		if err != nil {
			return nil, fmt.Errorf("item %d: bad last_refreshed_at: %w", item.ID, err)
		}
		item.LastRefreshedAt = &t
	}

	item.ProviderIDs = make(map[string]string)
	if providersJSON.Valid && providersJSON.String != "" {
		if err := json.Unmarshal([]byte(providersJSON.String), &item.ProviderIDs); err != nil {
			return nil, fmt.Errorf("item %d: bad provider ids: %w", item.ID, err)
		}
	}

	if imagesJSON.Valid && imagesJSON.String != "" {
		var images []imageRow
		if err := json.Unmarshal([]byte(imagesJSON.String), &images); err != nil {
			return nil, fmt.Errorf("item %d: bad images: %w", item.ID, err)
		}
		for _, img := range images {
			item.Images = append(item.Images, Image{
				Type:   ImageType(img.Type),
				Path:   img.Path,
				Remote: img.Remote != 0,
			})
		}
	}

	return &item, nil
}
