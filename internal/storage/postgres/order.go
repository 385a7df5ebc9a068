package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"catalog_sync/internal/domain"
)

type orderRow struct {
	ExternalID        int64           `db:"external_id"`
	Name              string          `db:"name"`
	Email             string          `db:"email"`
	FinancialStatus   string          `db:"financial_status"`
	FulfillmentStatus string          `db:"fulfillment_status"`
	Currency          string          `db:"currency"`
	TotalPrice        decimal.Decimal `db:"total_price"`
	SubtotalPrice     decimal.Decimal `db:"subtotal_price"`
	TotalTax          decimal.Decimal `db:"total_tax"`
	LineItems         []byte          `db:"line_items"`
	ProcessedAt       *time.Time      `db:"processed_at"`
	UpstreamCreatedAt time.Time       `db:"upstream_created_at"`
	UpstreamUpdatedAt time.Time       `db:"upstream_updated_at"`
}

type OrderStore struct {
	db *sqlx.DB
}

func NewOrderStore(db *sqlx.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Upsert(ctx context.Context, order *domain.Order) error {
	items := order.LineItems
	if items == nil {
		items = []domain.LineItem{}
	}
	lineItems, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}

	query := `
		INSERT INTO orders (
			external_id, name, email, financial_status, fulfillment_status, currency,
			total_price, subtotal_price, total_tax, line_items, processed_at,
			upstream_created_at, upstream_updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			financial_status = EXCLUDED.financial_status,
			fulfillment_status = EXCLUDED.fulfillment_status,
			currency = EXCLUDED.currency,
			total_price = EXCLUDED.total_price,
			subtotal_price = EXCLUDED.subtotal_price,
			total_tax = EXCLUDED.total_tax,
			line_items = EXCLUDED.line_items,
			processed_at = EXCLUDED.processed_at,
			upstream_created_at = EXCLUDED.upstream_created_at,
			upstream_updated_at = EXCLUDED.upstream_updated_at`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		order.ExternalID,
		order.Name,
		order.Email,
		order.FinancialStatus,
		order.FulfillmentStatus,
		order.Currency,
		order.TotalPrice,
		order.SubtotalPrice,
		order.TotalTax,
		lineItems,
		order.ProcessedAt,
		order.UpstreamCreatedAt,
		order.UpstreamUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order %d: %w", order.ExternalID, err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, externalID int64) (*domain.Order, error) {
	var row orderRow
	query := `
		SELECT external_id, name, email, financial_status, fulfillment_status, currency,
			total_price, subtotal_price, total_tax, line_items, processed_at,
			upstream_created_at, upstream_updated_at
		FROM orders
		WHERE external_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", externalID, err)
	}

	order := &domain.Order{
		ExternalID:        row.ExternalID,
		Name:              row.Name,
		Email:             row.Email,
		FinancialStatus:   row.FinancialStatus,
		FulfillmentStatus: row.FulfillmentStatus,
		Currency:          row.Currency,
		TotalPrice:        row.TotalPrice,
		SubtotalPrice:     row.SubtotalPrice,
		TotalTax:          row.TotalTax,
		ProcessedAt:       row.ProcessedAt,
		UpstreamCreatedAt: row.UpstreamCreatedAt,
		UpstreamUpdatedAt: row.UpstreamUpdatedAt,
	}
	if err := json.Unmarshal(row.LineItems, &order.LineItems); err != nil {
		return nil, fmt.Errorf("decode line items of order %d: %w", externalID, err)
	}
	return order, nil
}
