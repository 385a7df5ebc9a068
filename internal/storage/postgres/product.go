package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/query"
)

const productColumns = `external_id, handle, title, description, product_type, vendor, brand,
	status, available, tags, attributes, price_min, price_max, image_url,
	collection_handles, upstream_updated_at, has_embedding`

type productRow struct {
	ExternalID        int64           `db:"external_id"`
	Handle            string          `db:"handle"`
	Title             string          `db:"title"`
	Description       string          `db:"description"`
	ProductType       string          `db:"product_type"`
	Vendor            string          `db:"vendor"`
	Brand             string          `db:"brand"`
	Status            string          `db:"status"`
	Available         bool            `db:"available"`
	Tags              pq.StringArray  `db:"tags"`
	Attributes        []byte          `db:"attributes"`
	PriceMin          decimal.Decimal `db:"price_min"`
	PriceMax          decimal.Decimal `db:"price_max"`
	ImageURL          *string         `db:"image_url"`
	CollectionHandles pq.StringArray  `db:"collection_handles"`
	UpstreamUpdatedAt time.Time       `db:"upstream_updated_at"`
	HasEmbedding      bool            `db:"has_embedding"`
}

func (r *productRow) toDomain() (domain.Product, error) {
	p := domain.Product{
		ExternalID:        r.ExternalID,
		Handle:            r.Handle,
		Title:             r.Title,
		Description:       r.Description,
		ProductType:       r.ProductType,
		Vendor:            r.Vendor,
		Brand:             r.Brand,
		Status:            r.Status,
		Available:         r.Available,
		Tags:              []string(r.Tags),
		PriceMin:          r.PriceMin,
		PriceMax:          r.PriceMax,
		ImageURL:          r.ImageURL,
		CollectionHandles: []string(r.CollectionHandles),
		UpstreamUpdatedAt: r.UpstreamUpdatedAt,
		HasEmbedding:      r.HasEmbedding,
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &p.Attributes); err != nil {
			return p, fmt.Errorf("decode attributes of product %d: %w", r.ExternalID, err)
		}
	}
	return p, nil
}

type ProductStore struct {
	db *sqlx.DB
}

func NewProductStore(db *sqlx.DB) *ProductStore {
	return &ProductStore{db: db}
}

// Upsert writes every synced column. has_embedding belongs to the
// embedding service and is left untouched on conflict.
func (s *ProductStore) Upsert(ctx context.Context, product *domain.Product) error {
	attrs := product.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attributes, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	query := `
		INSERT INTO products (
			external_id, handle, title, description, product_type, vendor, brand,
			status, available, tags, attributes, price_min, price_max, image_url,
			collection_handles, upstream_updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (external_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			product_type = EXCLUDED.product_type,
			vendor = EXCLUDED.vendor,
			brand = EXCLUDED.brand,
			status = EXCLUDED.status,
			available = EXCLUDED.available,
			tags = EXCLUDED.tags,
			attributes = EXCLUDED.attributes,
			price_min = EXCLUDED.price_min,
			price_max = EXCLUDED.price_max,
			image_url = EXCLUDED.image_url,
			collection_handles = EXCLUDED.collection_handles,
			upstream_updated_at = EXCLUDED.upstream_updated_at,
			updated_at = NOW()`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		product.ExternalID,
		product.Handle,
		product.Title,
		product.Description,
		product.ProductType,
		product.Vendor,
		product.Brand,
		product.Status,
		product.Available,
		pq.Array(nonNil(product.Tags)),
		attributes,
		product.PriceMin,
		product.PriceMax,
		product.ImageURL,
		pq.Array(nonNil(product.CollectionHandles)),
		product.UpstreamUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert product %d: %w", product.ExternalID, err)
	}
	return nil
}

func (s *ProductStore) Get(ctx context.Context, externalID int64) (*domain.Product, error) {
	var row productRow
	query := `SELECT ` + productColumns + ` FROM products WHERE external_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", externalID, err)
	}

	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Search returns the products matching every clause, ordered by id.
func (s *ProductStore) Search(ctx context.Context, clauses []query.Clause) ([]domain.Product, error) {
	where, args := query.Where(clauses, 0)
	q := `SELECT ` + productColumns + ` FROM products WHERE ` + where + ` ORDER BY external_id`

	var rows []productRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, q, args...); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	products := make([]domain.Product, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *ProductStore) List(ctx context.Context) ([]domain.Product, error) {
	return s.Search(ctx, nil)
}

// SoftDelete marks a product unavailable and deleted, keeping the row.
func (s *ProductStore) SoftDelete(ctx context.Context, externalID int64) (*domain.Product, error) {
	var row productRow
	query := `
		UPDATE products
		SET available = FALSE, status = $2, updated_at = NOW()
		WHERE external_id = $1
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, externalID, domain.ProductStatusDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("soft delete product %d: %w", externalID, err)
	}

	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RemoveCollectionHandles strips the given handles from every product and
// returns the number of products changed.
func (s *ProductStore) RemoveCollectionHandles(ctx context.Context, handles []string) (int64, error) {
	if len(handles) == 0 {
		return 0, nil
	}

	query := `
		UPDATE products
		SET collection_handles = ARRAY(
				SELECT h FROM unnest(collection_handles) AS h WHERE h <> ALL($1)
			),
			updated_at = NOW()
		WHERE collection_handles && $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, pq.Array(handles))
	if err != nil {
		return 0, fmt.Errorf("remove collection handles: %w", err)
	}
	return res.RowsAffected()
}

// MarkEmbedded records that the embedding service has indexed a product.
func (s *ProductStore) MarkEmbedded(ctx context.Context, externalID int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE products SET has_embedding = TRUE WHERE external_id = $1`, externalID)
	if err != nil {
		return fmt.Errorf("mark product %d embedded: %w", externalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
