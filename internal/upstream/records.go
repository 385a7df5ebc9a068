// Package upstream holds the records and paging contract of the remote
// catalog API. Types mirror the wire shape; mapping to the local model
// happens in package transform.
package upstream

// PageRequest asks for one bounded page. Filter is an opaque predicate in
// the upstream search syntax, built by the caller.
type PageRequest struct {
	Cursor string
	Filter string
	Limit  int
}

type Page[R any] struct {
	Records    []R
	NextCursor string
	HasMore    bool
}

type ProductRecord struct {
	ID            string          `json:"id"`
	Handle        string          `json:"handle"`
	Title         string          `json:"title"`
	Description   *string         `json:"description"`
	ProductType   *string         `json:"productType"`
	Vendor        *string         `json:"vendor"`
	Status        string          `json:"status"`
	Tags          []string        `json:"tags"`
	UpdatedAt     string          `json:"updatedAt"`
	Options       []ProductOption `json:"options"`
	Variants      []Variant       `json:"variants"`
	Collections   []string        `json:"collections"`
	FeaturedImage *Image          `json:"featuredImage"`
}

type ProductOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type Variant struct {
	ID                string  `json:"id"`
	SKU               *string `json:"sku"`
	Price             string  `json:"price"`
	AvailableForSale  bool    `json:"availableForSale"`
	InventoryQuantity *int    `json:"inventoryQuantity"`
}

type Image struct {
	URL string `json:"url"`
}

type CollectionRecord struct {
	ID            string  `json:"id"`
	Handle        string  `json:"handle"`
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	ProductsCount int     `json:"productsCount"`
	UpdatedAt     string  `json:"updatedAt"`
}

type OrderRecord struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	Email                    *string    `json:"email"`
	DisplayFinancialStatus   *string    `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus *string    `json:"displayFulfillmentStatus"`
	CurrencyCode             string     `json:"currencyCode"`
	TotalPrice               string     `json:"totalPrice"`
	SubtotalPrice            *string    `json:"subtotalPrice"`
	TotalTax                 *string    `json:"totalTax"`
	ProcessedAt              *string    `json:"processedAt"`
	CreatedAt                string     `json:"createdAt"`
	UpdatedAt                string     `json:"updatedAt"`
	LineItems                []LineItem `json:"lineItems"`
}

type LineItem struct {
	SKU      *string `json:"sku"`
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    string  `json:"price"`
}
