package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"catalog_sync/internal/cache"
	"catalog_sync/internal/domain"
	"catalog_sync/internal/transform"
)

const productsKey = "products"

type ProductSearcher interface {
	Search(ctx context.Context, clauses []Clause) ([]domain.Product, error)
}

type Result struct {
	Products []domain.Product
	CacheKey string
	// Cached is true when the products came from the cache.
	Cached bool
	// Approximate is true when a broader cached result was narrowed in
	// memory instead of querying the store.
	Approximate bool
}

// Service answers product filter queries, caching results for filter
// patterns that are requested often enough.
type Service struct {
	store   ProductSearcher
	cache   *cache.Cache
	tracker *cache.PatternTracker
	logger  *slog.Logger
}

func NewService(store ProductSearcher, c *cache.Cache, tracker *cache.PatternTracker, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		cache:   c,
		tracker: tracker,
		logger:  logger.With("component", "query"),
	}
}

func (s *Service) Products(ctx context.Context, filters map[string]string) (*Result, error) {
	clauses, err := FromFilters(filters)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	dims := cacheDimensions(clauses)
	key := cache.HierarchicalKey(productsKey, dims)

	hit, found := s.cache.GetHierarchical(productsKey, dims)
	if found && hit.Exact {
		if products, ok := hit.Value.([]domain.Product); ok {
			return &Result{Products: products, CacheKey: hit.Key, Cached: true}, nil
		}
	}

	hot, err := s.tracker.Observe(ctx, key)
	if err != nil {
		s.logger.Warn("pattern tracking unavailable", "key", key, "error", err)
	}

	if found && !hot {
		if broad, ok := hit.Value.([]domain.Product); ok {
			return &Result{
				Products:    narrow(broad, clauses),
				CacheKey:    hit.Key,
				Cached:      true,
				Approximate: true,
			}, nil
		}
	}

	products, err := s.store.Search(ctx, clauses)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	if hot || len(dims) == 0 {
		s.cache.Set(key, products)
		s.logger.Debug("cached query result", "key", key, "count", len(products))
	}
	return &Result{Products: products, CacheKey: key}, nil
}

func narrow(products []domain.Product, clauses []Clause) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for i := range products {
		if MatchAll(clauses, &products[i]) {
			out = append(out, products[i])
		}
	}
	return out
}

// cacheDimensions derives the cache key dimensions from built clauses, so
// spellings that build the same clauses ("colors" and "color", "tags" and
// "tag") share one cache entry.
func cacheDimensions(clauses []Clause) map[string]string {
	out := make(map[string]string, len(clauses))
	put := func(name, value string) {
		if prev, ok := out[name]; ok {
			value = prev + "|" + value
		}
		out[name] = value
	}

	for _, c := range clauses {
		switch c := c.(type) {
		case EqualClause:
			put(c.Field, c.Value)
		case MembershipClause:
			name := KeyTag
			if c.Field == FieldCollections {
				name = KeyCollection
			}
			put(name, singularSet(c.Values))
		case RangeClause:
			if c.Min != nil {
				put(KeyPriceMin, c.Min.String())
			}
			if c.Max != nil {
				put(KeyPriceMax, c.Max.String())
			}
		}
	}
	return out
}

func singularSet(values []string) string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = transform.Singular(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
