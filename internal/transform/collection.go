package transform

import (
	"strings"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/upstream"
)

func Collection(rec upstream.CollectionRecord) (*domain.Collection, error) {
	id, err := ParseGID(rec.ID)
	if err != nil {
		return nil, err
	}

	updatedAt, err := parseTime("updatedAt", rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &domain.Collection{
		ExternalID:        id,
		Handle:            strings.TrimSpace(rec.Handle),
		Title:             strings.TrimSpace(rec.Title),
		Description:       str(rec.Description),
		ProductsCount:     rec.ProductsCount,
		UpstreamUpdatedAt: updatedAt,
	}, nil
}
