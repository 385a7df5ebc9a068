package shopify

import (
	"encoding/json"

	"catalog_sync/internal/upstream"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []graphQLError  `json:"errors"`
	Extensions *extensions     `json:"extensions"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type extensions struct {
	Cost *queryCost `json:"cost"`
}

type queryCost struct {
	RequestedQueryCost float64        `json:"requestedQueryCost"`
	ActualQueryCost    *float64       `json:"actualQueryCost"`
	ThrottleStatus     throttleStatus `json:"throttleStatus"`
}

type throttleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

type pageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type connection[N any] struct {
	PageInfo pageInfo `json:"pageInfo"`
	Nodes    []N      `json:"nodes"`
}

type money struct {
	ShopMoney struct {
		Amount string `json:"amount"`
	} `json:"shopMoney"`
}

type productNode struct {
	ID          string                       `json:"id"`
	Handle      string                       `json:"handle"`
	Title       string                       `json:"title"`
	Description *string                      `json:"description"`
	ProductType *string                      `json:"productType"`
	Vendor      *string                      `json:"vendor"`
	Status      string                       `json:"status"`
	Tags        []string                     `json:"tags"`
	UpdatedAt   string                       `json:"updatedAt"`
	Options     []upstream.ProductOption     `json:"options"`
	Variants    connection[upstream.Variant] `json:"variants"`
	Collections connection[struct {
		Title string `json:"title"`
	}] `json:"collections"`
	FeaturedImage *upstream.Image `json:"featuredImage"`
}

func (n productNode) record() upstream.ProductRecord {
	rec := upstream.ProductRecord{
		ID:            n.ID,
		Handle:        n.Handle,
		Title:         n.Title,
		Description:   n.Description,
		ProductType:   n.ProductType,
		Vendor:        n.Vendor,
		Status:        n.Status,
		Tags:          n.Tags,
		UpdatedAt:     n.UpdatedAt,
		Options:       n.Options,
		Variants:      n.Variants.Nodes,
		FeaturedImage: n.FeaturedImage,
	}
	for _, c := range n.Collections.Nodes {
		rec.Collections = append(rec.Collections, c.Title)
	}
	return rec
}

type collectionNode struct {
	ID            string  `json:"id"`
	Handle        string  `json:"handle"`
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	ProductsCount *struct {
		Count int `json:"count"`
	} `json:"productsCount"`
	UpdatedAt string `json:"updatedAt"`
}

func (n collectionNode) record() upstream.CollectionRecord {
	rec := upstream.CollectionRecord{
		ID:          n.ID,
		Handle:      n.Handle,
		Title:       n.Title,
		Description: n.Description,
		UpdatedAt:   n.UpdatedAt,
	}
	if n.ProductsCount != nil {
		rec.ProductsCount = n.ProductsCount.Count
	}
	return rec
}

type orderNode struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	Email                    *string `json:"email"`
	DisplayFinancialStatus   *string `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus *string `json:"displayFulfillmentStatus"`
	CurrencyCode             string  `json:"currencyCode"`
	TotalPriceSet            money   `json:"totalPriceSet"`
	SubtotalPriceSet         *money  `json:"subtotalPriceSet"`
	TotalTaxSet              *money  `json:"totalTaxSet"`
	ProcessedAt              *string `json:"processedAt"`
	CreatedAt                string  `json:"createdAt"`
	UpdatedAt                string  `json:"updatedAt"`
	LineItems                connection[struct {
		SKU                  *string `json:"sku"`
		Title                string  `json:"title"`
		Quantity             int     `json:"quantity"`
		OriginalUnitPriceSet money   `json:"originalUnitPriceSet"`
	}] `json:"lineItems"`
}

func (n orderNode) record() upstream.OrderRecord {
	rec := upstream.OrderRecord{
		ID:                       n.ID,
		Name:                     n.Name,
		Email:                    n.Email,
		DisplayFinancialStatus:   n.DisplayFinancialStatus,
		DisplayFulfillmentStatus: n.DisplayFulfillmentStatus,
		CurrencyCode:             n.CurrencyCode,
		TotalPrice:               n.TotalPriceSet.ShopMoney.Amount,
		SubtotalPrice:            amount(n.SubtotalPriceSet),
		TotalTax:                 amount(n.TotalTaxSet),
		ProcessedAt:              n.ProcessedAt,
		CreatedAt:                n.CreatedAt,
		UpdatedAt:                n.UpdatedAt,
	}
	for _, li := range n.LineItems.Nodes {
		rec.LineItems = append(rec.LineItems, upstream.LineItem{
			SKU:      li.SKU,
			Title:    li.Title,
			Quantity: li.Quantity,
			Price:    li.OriginalUnitPriceSet.ShopMoney.Amount,
		})
	}
	return rec
}

func amount(m *money) *string {
	if m == nil {
		return nil
	}
	a := m.ShopMoney.Amount
	return &a
}

func toPage[N, R any](conn connection[N], convert func(N) R) *upstream.Page[R] {
	page := &upstream.Page[R]{
		Records: make([]R, 0, len(conn.Nodes)),
		HasMore: conn.PageInfo.HasNextPage,
	}
	for _, n := range conn.Nodes {
		page.Records = append(page.Records, convert(n))
	}
	if conn.PageInfo.EndCursor != nil {
		page.NextCursor = *conn.PageInfo.EndCursor
	}
	return page
}
