package shopify

import (
	"context"

	"catalog_sync/internal/upstream"
)

// PageFunc adapts a fetch function to the pipeline's page source.
type PageFunc[R any] func(ctx context.Context, req upstream.PageRequest) (*upstream.Page[R], error)

func (f PageFunc[R]) FetchPage(ctx context.Context, req upstream.PageRequest) (*upstream.Page[R], error) {
	return f(ctx, req)
}

func (c *Client) Products() PageFunc[upstream.ProductRecord] {
	return c.FetchProducts
}

func (c *Client) Collections() PageFunc[upstream.CollectionRecord] {
	return c.FetchCollections
}

func (c *Client) Orders() PageFunc[upstream.OrderRecord] {
	return c.FetchOrders
}

// CollectionProducts returns a source scoped to one collection.
func (c *Client) CollectionProducts(collectionID int64) PageFunc[upstream.ProductRecord] {
	return func(ctx context.Context, req upstream.PageRequest) (*upstream.Page[upstream.ProductRecord], error) {
		return c.FetchCollectionProducts(ctx, collectionID, req)
	}
}
