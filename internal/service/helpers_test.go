package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"catalog_sync/internal/config"
	"catalog_sync/internal/upstream"
)

// pagedSource serves fixed pages keyed by the cursor that requests them.
// An error registered for a cursor is returned once.
type pagedSource[R any] struct {
	mu       sync.Mutex
	pages    map[string]*upstream.Page[R]
	failures map[string]error
	requests []upstream.PageRequest
}

func newPagedSource[R any](pages map[string]*upstream.Page[R]) *pagedSource[R] {
	return &pagedSource[R]{pages: pages, failures: make(map[string]error)}
}

func (s *pagedSource[R]) FetchPage(_ context.Context, req upstream.PageRequest) (*upstream.Page[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if err, ok := s.failures[req.Cursor]; ok {
		delete(s.failures, req.Cursor)
		return nil, err
	}
	page, ok := s.pages[req.Cursor]
	if !ok {
		return nil, fmt.Errorf("unexpected cursor %q", req.Cursor)
	}
	return page, nil
}

func (s *pagedSource[R]) failOnce(cursor string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[cursor] = err
}

func (s *pagedSource[R]) Requests() []upstream.PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]upstream.PageRequest(nil), s.requests...)
}

// paginate splits records into pages whose cursors are "", "c1", "c2", ...
func paginate[R any](records []R, pageSize int) map[string]*upstream.Page[R] {
	pages := make(map[string]*upstream.Page[R])
	cursor := ""
	for i := 0; ; i++ {
		start := i * pageSize
		end := start + pageSize
		if end > len(records) {
			end = len(records)
		}
		page := &upstream.Page[R]{Records: records[start:end]}
		if end < len(records) {
			page.HasMore = true
			page.NextCursor = fmt.Sprintf("c%d", i+1)
		}
		pages[cursor] = page
		if !page.HasMore {
			return pages
		}
		cursor = page.NextCursor
	}
}

func productRecord(id int) upstream.ProductRecord {
	return upstream.ProductRecord{
		ID:        fmt.Sprintf("gid://shopify/Product/%d", id),
		Handle:    fmt.Sprintf("product-%d", id),
		Title:     fmt.Sprintf("Product %d", id),
		Status:    "ACTIVE",
		Tags:      []string{"color:red", "Summer"},
		UpdatedAt: "2024-03-01T10:00:00Z",
		Options:   []upstream.ProductOption{{Name: "Size", Values: []string{"M"}}},
		Variants: []upstream.Variant{
			{ID: fmt.Sprintf("gid://shopify/ProductVariant/%d", id), Price: "19.99", AvailableForSale: true},
		},
	}
}

func productRecords(n int) []upstream.ProductRecord {
	out := make([]upstream.ProductRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, productRecord(i))
	}
	return out
}

func collectionRecord(id int, handle, title string) upstream.CollectionRecord {
	return upstream.CollectionRecord{
		ID:            fmt.Sprintf("gid://shopify/Collection/%d", id),
		Handle:        handle,
		Title:         title,
		ProductsCount: 1,
		UpdatedAt:     "2024-03-01T10:00:00Z",
	}
}

func orderRecord(id int) upstream.OrderRecord {
	return upstream.OrderRecord{
		ID:           fmt.Sprintf("gid://shopify/Order/%d", id),
		Name:         fmt.Sprintf("#%d", 1000+id),
		CurrencyCode: "USD",
		TotalPrice:   "42.50",
		CreatedAt:    "2024-03-01T09:00:00Z",
		UpdatedAt:    "2024-03-01T10:00:00Z",
		LineItems:    []upstream.LineItem{{Title: "Tee", Quantity: 2, Price: "21.25"}},
	}
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PageSize:     50,
		FetchTimeout: time.Second,
		StateRetry: config.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stepClock advances by one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
