package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/upstream"
)

type ClientTestSuite struct {
	suite.Suite
	ctx      context.Context
	server   *httptest.Server
	handler  http.HandlerFunc
	requests atomic.Int32
	client   *Client
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.requests.Store(0)
	s.handler = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.handler(w, r)
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	s.client = New(Config{
		Endpoint:       s.server.URL,
		Token:          "shpat_test",
		PageSize:       25,
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, logger)
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func decodeRequest(r *http.Request) graphQLRequest {
	var req graphQLRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

const productsPage = `{
	"data": {
		"products": {
			"pageInfo": {"hasNextPage": true, "endCursor": "eyJsYXN0X2lkIjo3fQ"},
			"nodes": [{
				"id": "gid://shopify/Product/7",
				"handle": "linen-shirt",
				"title": "Linen Shirt",
				"description": "Breathable",
				"productType": "Shirts",
				"vendor": "Acme",
				"status": "ACTIVE",
				"tags": ["summer", "linen"],
				"updatedAt": "2026-05-01T10:00:00Z",
				"options": [{"name": "Size", "values": ["S", "M"]}],
				"variants": {"nodes": [
					{"id": "gid://shopify/ProductVariant/70", "sku": "LS-S", "price": "49.00", "availableForSale": true, "inventoryQuantity": 3}
				]},
				"collections": {"nodes": [{"title": "Summer"}]},
				"featuredImage": {"url": "https://cdn.example.com/ls.jpg"}
			}]
		}
	},
	"extensions": {"cost": {"requestedQueryCost": 52, "throttleStatus": {"maximumAvailable": 2000, "currentlyAvailable": 1948, "restoreRate": 100}}}
}`

func (s *ClientTestSuite) TestFetchProducts_MapsPage() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		s.Equal("shpat_test", r.Header.Get("X-Shopify-Access-Token"))

		req := decodeRequest(r)
		s.Contains(req.Query, "products(first: $first")
		s.EqualValues(10, req.Variables["first"])
		s.Equal("abc", req.Variables["after"])
		s.Equal("updated_at:>='2026-05-01T00:00:00Z'", req.Variables["query"])

		writeJSON(w, productsPage)
	}

	page, err := s.client.Products().FetchPage(s.ctx, upstream.PageRequest{
		Cursor: "abc",
		Filter: "updated_at:>='2026-05-01T00:00:00Z'",
		Limit:  10,
	})
	s.Require().NoError(err)

	s.True(page.HasMore)
	s.Equal("eyJsYXN0X2lkIjo3fQ", page.NextCursor)
	s.Require().Len(page.Records, 1)

	rec := page.Records[0]
	s.Equal("gid://shopify/Product/7", rec.ID)
	s.Equal("linen-shirt", rec.Handle)
	s.Equal([]string{"summer", "linen"}, rec.Tags)
	s.Equal([]string{"Summer"}, rec.Collections)
	s.Require().Len(rec.Variants, 1)
	s.Equal("49.00", rec.Variants[0].Price)
	s.Require().NotNil(rec.FeaturedImage)
	s.Equal("https://cdn.example.com/ls.jpg", rec.FeaturedImage.URL)
}

func (s *ClientTestSuite) TestFetchProducts_DefaultsPageSize() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(r)
		s.EqualValues(25, req.Variables["first"])
		s.NotContains(req.Variables, "after")
		s.NotContains(req.Variables, "query")
		writeJSON(w, `{"data": {"products": {"pageInfo": {"hasNextPage": false, "endCursor": null}, "nodes": []}}}`)
	}

	page, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().NoError(err)
	s.False(page.HasMore)
	s.Empty(page.NextCursor)
	s.Empty(page.Records)
}

func (s *ClientTestSuite) TestFetchCollectionProducts_ScopesToCollection() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(r)
		s.Equal("gid://shopify/Collection/42", req.Variables["id"])
		s.NotContains(req.Variables, "query")
		writeJSON(w, `{"data": {"collection": {"products": {"pageInfo": {"hasNextPage": false}, "nodes": [{"id": "gid://shopify/Product/1", "handle": "a", "title": "A", "status": "ACTIVE", "updatedAt": "2026-05-01T10:00:00Z", "variants": {"nodes": []}, "collections": {"nodes": []}}]}}}}`)
	}

	page, err := s.client.CollectionProducts(42).FetchPage(s.ctx, upstream.PageRequest{Filter: "ignored"})
	s.Require().NoError(err)
	s.Len(page.Records, 1)
}

func (s *ClientTestSuite) TestFetchCollectionProducts_MissingCollection() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data": {"collection": null}}`)
	}

	page, err := s.client.FetchCollectionProducts(s.ctx, 9, upstream.PageRequest{})
	s.Require().NoError(err)
	s.Empty(page.Records)
	s.False(page.HasMore)
}

func (s *ClientTestSuite) TestFetchCollections_MapsCount() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data": {"collections": {"pageInfo": {"hasNextPage": false}, "nodes": [{"id": "gid://shopify/Collection/5", "handle": "summer", "title": "Summer", "productsCount": {"count": 12}, "updatedAt": "2026-05-01T10:00:00Z"}]}}}`)
	}

	page, err := s.client.Collections().FetchPage(s.ctx, upstream.PageRequest{})
	s.Require().NoError(err)
	s.Require().Len(page.Records, 1)
	s.Equal(12, page.Records[0].ProductsCount)
	s.Equal("summer", page.Records[0].Handle)
}

func (s *ClientTestSuite) TestFetchOrders_MapsMoney() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data": {"orders": {"pageInfo": {"hasNextPage": false}, "nodes": [{
			"id": "gid://shopify/Order/3", "name": "#1003", "currencyCode": "EUR",
			"totalPriceSet": {"shopMoney": {"amount": "98.00"}},
			"totalTaxSet": {"shopMoney": {"amount": "8.00"}},
			"createdAt": "2026-05-01T10:00:00Z", "updatedAt": "2026-05-02T10:00:00Z",
			"lineItems": {"nodes": [{"sku": "LS-S", "title": "Linen Shirt", "quantity": 2, "originalUnitPriceSet": {"shopMoney": {"amount": "45.00"}}}]}
		}]}}}`)
	}

	page, err := s.client.Orders().FetchPage(s.ctx, upstream.PageRequest{})
	s.Require().NoError(err)
	s.Require().Len(page.Records, 1)

	rec := page.Records[0]
	s.Equal("98.00", rec.TotalPrice)
	s.Nil(rec.SubtotalPrice)
	s.Require().NotNil(rec.TotalTax)
	s.Equal("8.00", *rec.TotalTax)
	s.Require().Len(rec.LineItems, 1)
	s.Equal("45.00", rec.LineItems[0].Price)
	s.Equal(2, rec.LineItems[0].Quantity)
}

func (s *ClientTestSuite) TestRetriesServerErrors() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if s.requests.Load() < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, productsPage)
	}

	page, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().NoError(err)
	s.Len(page.Records, 1)
	s.EqualValues(3, s.requests.Load())
}

func (s *ClientTestSuite) TestRetriesTooManyRequests() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if s.requests.Load() == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, productsPage)
	}

	_, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().NoError(err)
	s.EqualValues(2, s.requests.Load())
}

func (s *ClientTestSuite) TestRetriesThrottledGraphQLError() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if s.requests.Load() == 1 {
			writeJSON(w, `{"errors": [{"message": "Throttled", "extensions": {"code": "THROTTLED"}}]}`)
			return
		}
		writeJSON(w, productsPage)
	}

	_, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().NoError(err)
	s.EqualValues(2, s.requests.Load())
}

func (s *ClientTestSuite) TestGivesUpAfterMaxAttempts() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().Error(err)
	s.True(errors.Is(err, domain.ErrFetch))
	s.Contains(err.Error(), "after 3 attempts")
	s.EqualValues(3, s.requests.Load())
}

func (s *ClientTestSuite) TestDoesNotRetryClientErrors() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "invalid token")
	}

	_, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().Error(err)
	s.True(errors.Is(err, domain.ErrFetch))
	s.Contains(err.Error(), "401")
	s.EqualValues(1, s.requests.Load())
}

func (s *ClientTestSuite) TestDoesNotRetryQueryErrors() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"errors": [{"message": "Field 'foo' doesn't exist"}, {"message": "Variable $first is required"}]}`)
	}

	_, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().Error(err)
	s.True(errors.Is(err, domain.ErrFetch))
	s.Contains(err.Error(), "Field 'foo' doesn't exist; Variable $first is required")
	s.EqualValues(1, s.requests.Load())
}

func (s *ClientTestSuite) TestCancelledContext() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.client.FetchProducts(ctx, upstream.PageRequest{})
	s.Require().Error(err)
	s.True(errors.Is(err, context.Canceled))
	s.False(errors.Is(err, domain.ErrFetch))
}

func (s *ClientTestSuite) TestLowBudgetPausesNextRequest() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data": {"products": {"pageInfo": {"hasNextPage": false}, "nodes": []}},
			"extensions": {"cost": {"requestedQueryCost": 50, "throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 40, "restoreRate": 50}}}}`)
	}

	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.client.now = func() time.Time { return start }

	_, err := s.client.FetchProducts(s.ctx, upstream.PageRequest{})
	s.Require().NoError(err)
	s.Equal(start.Add(1200*time.Millisecond), s.client.pauseUntil)
}

func TestThrottleWait(t *testing.T) {
	tests := []struct {
		name      string
		status    throttleStatus
		requested float64
		want      time.Duration
	}{
		{
			name:      "plenty available",
			status:    throttleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 900, RestoreRate: 50},
			requested: 50,
			want:      0,
		},
		{
			name:      "below floor",
			status:    throttleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 50, RestoreRate: 50},
			requested: 10,
			want:      time.Second,
		},
		{
			name:      "expensive query",
			status:    throttleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 200, RestoreRate: 100},
			requested: 400,
			want:      2 * time.Second,
		},
		{
			name:      "capped by bucket size",
			status:    throttleStatus{MaximumAvailable: 80, CurrentlyAvailable: 40, RestoreRate: 20},
			requested: 10,
			want:      2 * time.Second,
		},
		{
			name:      "unknown restore rate",
			status:    throttleStatus{CurrentlyAvailable: 0},
			requested: 50,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := throttleWait(tt.status, tt.requested); got != tt.want {
				t.Errorf("throttleWait() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	if got := retryAfter("2"); got != 2*time.Second {
		t.Errorf("retryAfter(2) = %v", got)
	}
	if got := retryAfter(""); got != 0 {
		t.Errorf("retryAfter(empty) = %v", got)
	}
	if got := retryAfter("soon"); got != 0 {
		t.Errorf("retryAfter(soon) = %v", got)
	}
}
