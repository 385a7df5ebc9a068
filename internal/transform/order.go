package transform

import (
	"strings"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/upstream"
)

func Order(rec upstream.OrderRecord) (*domain.Order, error) {
	id, err := ParseGID(rec.ID)
	if err != nil {
		return nil, err
	}

	createdAt, err := parseTime("createdAt", rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime("updatedAt", rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	total, err := parseMoney("totalPrice", rec.TotalPrice)
	if err != nil {
		return nil, err
	}
	subtotal, err := parseMoney("subtotalPrice", str(rec.SubtotalPrice))
	if err != nil {
		return nil, err
	}
	tax, err := parseMoney("totalTax", str(rec.TotalTax))
	if err != nil {
		return nil, err
	}

	o := &domain.Order{
		ExternalID:        id,
		Name:              strings.TrimSpace(rec.Name),
		Email:             strings.ToLower(str(rec.Email)),
		FinancialStatus:   strings.ToUpper(str(rec.DisplayFinancialStatus)),
		FulfillmentStatus: strings.ToUpper(str(rec.DisplayFulfillmentStatus)),
		Currency:          strings.ToUpper(strings.TrimSpace(rec.CurrencyCode)),
		TotalPrice:        total,
		SubtotalPrice:     subtotal,
		TotalTax:          tax,
		LineItems:         make([]domain.LineItem, 0, len(rec.LineItems)),
		UpstreamCreatedAt: createdAt,
		UpstreamUpdatedAt: updatedAt,
	}

	if processed := str(rec.ProcessedAt); processed != "" {
		t, err := parseTime("processedAt", processed)
		if err != nil {
			return nil, err
		}
		o.ProcessedAt = &t
	}

	for _, li := range rec.LineItems {
		price, err := parseMoney("line item price", li.Price)
		if err != nil {
			return nil, err
		}
		o.LineItems = append(o.LineItems, domain.LineItem{
			SKU:      str(li.SKU),
			Title:    strings.TrimSpace(li.Title),
			Quantity: li.Quantity,
			Price:    price,
		})
	}

	return o, nil
}
