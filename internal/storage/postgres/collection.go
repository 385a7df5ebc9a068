package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"catalog_sync/internal/domain"
)

const collectionColumns = `external_id, handle, title, description, products_count,
	upstream_updated_at, synced_at`

type collectionRow struct {
	ExternalID        int64     `db:"external_id"`
	Handle            string    `db:"handle"`
	Title             string    `db:"title"`
	Description       string    `db:"description"`
	ProductsCount     int       `db:"products_count"`
	UpstreamUpdatedAt time.Time `db:"upstream_updated_at"`
	SyncedAt          time.Time `db:"synced_at"`
}

func (r collectionRow) toDomain() domain.Collection {
	return domain.Collection(r)
}

type CollectionStore struct {
	db *sqlx.DB
}

func NewCollectionStore(db *sqlx.DB) *CollectionStore {
	return &CollectionStore{db: db}
}

func (s *CollectionStore) Upsert(ctx context.Context, collection *domain.Collection) error {
	query := `
		INSERT INTO collections (
			external_id, handle, title, description, products_count,
			upstream_updated_at, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			products_count = EXCLUDED.products_count,
			upstream_updated_at = EXCLUDED.upstream_updated_at,
			synced_at = EXCLUDED.synced_at`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		collection.ExternalID,
		collection.Handle,
		collection.Title,
		collection.Description,
		collection.ProductsCount,
		collection.UpstreamUpdatedAt,
		collection.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert collection %d: %w", collection.ExternalID, err)
	}
	return nil
}

// HandlesByTitle maps every collection title to its handle. When several
// collections share a title the smallest handle wins.
func (s *CollectionStore) HandlesByTitle(ctx context.Context) (map[string]string, error) {
	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx,
		`SELECT title, min(handle) FROM collections GROUP BY title`)
	if err != nil {
		return nil, fmt.Errorf("load collection handles: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var title, handle string
		if err := rows.Scan(&title, &handle); err != nil {
			return nil, err
		}
		result[title] = handle
	}
	return result, rows.Err()
}

func (s *CollectionStore) Get(ctx context.Context, externalID int64) (*domain.Collection, error) {
	var row collectionRow
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE external_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %d: %w", externalID, err)
	}
	c := row.toDomain()
	return &c, nil
}

func (s *CollectionStore) List(ctx context.Context) ([]domain.Collection, error) {
	var rows []collectionRow
	query := `SELECT ` + collectionColumns + ` FROM collections ORDER BY external_id`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return toCollections(rows), nil
}

// DeleteStale removes collections last synced before the given time and
// returns them ordered by id.
func (s *CollectionStore) DeleteStale(ctx context.Context, syncedBefore time.Time) ([]domain.Collection, error) {
	var rows []collectionRow
	query := `DELETE FROM collections WHERE synced_at < $1 RETURNING ` + collectionColumns

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, syncedBefore); err != nil {
		return nil, fmt.Errorf("delete stale collections: %w", err)
	}

	removed := toCollections(rows)
	sort.Slice(removed, func(i, j int) bool {
		return removed[i].ExternalID < removed[j].ExternalID
	})
	return removed, nil
}

func (s *CollectionStore) Delete(ctx context.Context, externalID int64) (*domain.Collection, error) {
	var row collectionRow
	query := `DELETE FROM collections WHERE external_id = $1 RETURNING ` + collectionColumns

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete collection %d: %w", externalID, err)
	}
	c := row.toDomain()
	return &c, nil
}

func toCollections(rows []collectionRow) []domain.Collection {
	out := make([]domain.Collection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
