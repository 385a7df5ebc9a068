package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"catalog_sync/internal/domain"
	"catalog_sync/internal/upstream"
)

const (
	SourceID = "shopify"

	defaultPageSize = 50
	maxPageSize     = 250

	// throttleFloor is the remaining query cost below which the next request
	// waits for the bucket to refill.
	throttleFloor = 100
)

// Config holds Shopify Admin API configuration.
type Config struct {
	Endpoint       string
	Token          string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RateLimit      float64
	Burst          int
}

// Client pages through the Admin GraphQL API.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	token          string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	limiter        *rate.Limiter
	logger         *slog.Logger

	mu         sync.Mutex
	pauseUntil time.Time
	now        func() time.Time
}

// New creates a new Shopify client.
func New(cfg Config, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint:       cfg.Endpoint,
		token:          cfg.Token,
		pageSize:       cfg.PageSize,
		maxAttempts:    attempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		limiter:        rate.NewLimiter(limit, burst),
		logger:         logger.With("source", SourceID),
		now:            time.Now,
	}
}

// FetchProducts fetches one page of products.
func (c *Client) FetchProducts(ctx context.Context, req upstream.PageRequest) (*upstream.Page[upstream.ProductRecord], error) {
	var data struct {
		Products connection[productNode] `json:"products"`
	}
	if err := c.query(ctx, productsQuery, c.pageVariables(req), &data); err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	return toPage(data.Products, productNode.record), nil
}

// FetchCollections fetches one page of collections.
func (c *Client) FetchCollections(ctx context.Context, req upstream.PageRequest) (*upstream.Page[upstream.CollectionRecord], error) {
	var data struct {
		Collections connection[collectionNode] `json:"collections"`
	}
	if err := c.query(ctx, collectionsQuery, c.pageVariables(req), &data); err != nil {
		return nil, fmt.Errorf("fetch collections: %w", err)
	}
	return toPage(data.Collections, collectionNode.record), nil
}

// FetchOrders fetches one page of orders.
func (c *Client) FetchOrders(ctx context.Context, req upstream.PageRequest) (*upstream.Page[upstream.OrderRecord], error) {
	var data struct {
		Orders connection[orderNode] `json:"orders"`
	}
	if err := c.query(ctx, ordersQuery, c.pageVariables(req), &data); err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	return toPage(data.Orders, orderNode.record), nil
}

// FetchCollectionProducts fetches one page of the products in a collection.
// The filter is ignored; the collection connection does not accept one.
func (c *Client) FetchCollectionProducts(ctx context.Context, collectionID int64, req upstream.PageRequest) (*upstream.Page[upstream.ProductRecord], error) {
	vars := c.pageVariables(req)
	delete(vars, "query")
	vars["id"] = CollectionGID(collectionID)

	var data struct {
		Collection *struct {
			Products connection[productNode] `json:"products"`
		} `json:"collection"`
	}
	if err := c.query(ctx, collectionProductsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("fetch collection %d products: %w", collectionID, err)
	}
	if data.Collection == nil {
		return &upstream.Page[upstream.ProductRecord]{}, nil
	}
	return toPage(data.Collection.Products, productNode.record), nil
}

// CollectionGID returns the global ID of a collection.
func CollectionGID(id int64) string {
	return "gid://shopify/Collection/" + strconv.FormatInt(id, 10)
}

func (c *Client) pageVariables(req upstream.PageRequest) map[string]any {
	limit := req.Limit
	if limit <= 0 {
		limit = c.pageSize
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	vars := map[string]any{"first": limit}
	if req.Cursor != "" {
		vars["after"] = req.Cursor
	}
	if req.Filter != "" {
		vars["query"] = req.Filter
	}
	return vars
}

// query runs a GraphQL request with retries and decodes data into out.
// Every returned error other than cancellation wraps domain.ErrFetch.
func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", domain.ErrFetch, err)
	}

	for attempt := 1; ; attempt++ {
		if err := c.wait(ctx); err != nil {
			return err
		}

		var resp *graphQLResponse
		resp, err = c.doRequest(ctx, body)
		if err == nil {
			if err = json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("%w: decode data: %w", domain.ErrFetch, err)
			}
			return nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		if re.after > backoff {
			backoff = re.after
		}
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: after %d attempts: %w", domain.ErrFetch, c.maxAttempts, err)
}

// wait blocks for the local rate limit and any pause requested by the
// server's cost accounting.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	pause := c.pauseUntil.Sub(c.now())
	c.mu.Unlock()

	if pause > 0 {
		c.logger.Debug("throttled, waiting for query cost to restore", "wait", pause)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}

	return c.limiter.Wait(ctx)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*graphQLResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CatalogSync/1.0")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{
			err:   fmt.Errorf("unexpected status: %d", resp.StatusCode),
			after: retryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &retryableError{err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	wait := c.observeCost(gqlResp.Extensions)

	if len(gqlResp.Errors) > 0 {
		err := graphQLErrors(gqlResp.Errors)
		for _, e := range gqlResp.Errors {
			if e.Extensions.Code == "THROTTLED" {
				return nil, &retryableError{err: err, after: wait}
			}
		}
		return nil, err
	}

	return &gqlResp, nil
}

// observeCost schedules a pause when the remaining query budget runs low
// and returns its length.
func (c *Client) observeCost(ext *extensions) time.Duration {
	if ext == nil || ext.Cost == nil {
		return 0
	}
	cost := ext.Cost
	wait := throttleWait(cost.ThrottleStatus, cost.RequestedQueryCost)
	if wait <= 0 {
		return 0
	}

	c.logger.Info("query cost budget low",
		"available", cost.ThrottleStatus.CurrentlyAvailable,
		"restore_rate", cost.ThrottleStatus.RestoreRate,
		"wait", wait,
	)

	c.mu.Lock()
	if until := c.now().Add(wait); until.After(c.pauseUntil) {
		c.pauseUntil = until
	}
	c.mu.Unlock()
	return wait
}

// throttleWait returns how long to wait before the bucket holds enough
// points for another request of the given cost.
func throttleWait(status throttleStatus, requested float64) time.Duration {
	need := max(requested, throttleFloor)
	if status.MaximumAvailable > 0 {
		need = min(need, status.MaximumAvailable)
	}
	if status.CurrentlyAvailable >= need || status.RestoreRate <= 0 {
		return 0
	}
	seconds := (need - status.CurrentlyAvailable) / status.RestoreRate
	return time.Duration(seconds * float64(time.Second))
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

type retryableError struct {
	err   error
	after time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func graphQLErrors(errs []graphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
}
