package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatusDeleted marks a product removed upstream. Products are
// kept locally so references to them stay valid.
const ProductStatusDeleted = "DELETED"

type Product struct {
	ExternalID        int64  `validate:"gt=0"`
	Handle            string `validate:"required"`
	Title             string `validate:"required"`
	Description       string
	ProductType       string
	Vendor            string
	Brand             string
	Status            string
	Available         bool
	Tags              []string
	Attributes        map[string]string
	PriceMin          decimal.Decimal
	PriceMax          decimal.Decimal
	ImageURL          *string
	CollectionNames   []string // upstream titles, resolved into CollectionHandles
	CollectionHandles []string
	UpstreamUpdatedAt time.Time

	// Owned by the embedding pipeline; never written by sync.
	HasEmbedding bool
}

type Collection struct {
	ExternalID        int64  `validate:"gt=0"`
	Handle            string `validate:"required"`
	Title             string `validate:"required"`
	Description       string
	ProductsCount     int `validate:"gte=0"`
	UpstreamUpdatedAt time.Time
	SyncedAt          time.Time
}

type Order struct {
	ExternalID        int64  `validate:"gt=0"`
	Name              string `validate:"required"`
	Email             string `validate:"omitempty,email"`
	FinancialStatus   string
	FulfillmentStatus string
	Currency          string `validate:"omitempty,len=3"`
	TotalPrice        decimal.Decimal
	SubtotalPrice     decimal.Decimal
	TotalTax          decimal.Decimal
	LineItems         []LineItem `validate:"dive"`
	ProcessedAt       *time.Time
	UpstreamCreatedAt time.Time
	UpstreamUpdatedAt time.Time
}

type LineItem struct {
	SKU      string          `json:"sku"`
	Title    string          `json:"title" validate:"required"`
	Quantity int             `json:"quantity" validate:"gte=0"`
	Price    decimal.Decimal `json:"price"`
}
