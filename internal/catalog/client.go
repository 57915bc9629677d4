package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/observability"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
	tenantParam    = "tenant"
)

var (
	// ErrNotFound is returned when the service has no such product.
	ErrNotFound = errors.New("catalog: not found")
	// ErrUnsuccessful is returned when the envelope reports success=false.
	ErrUnsuccessful = errors.New("catalog: unsuccessful response")
	// ErrNotConfigured is returned by a client without a base URL.
	ErrNotConfigured = errors.New("catalog: base url not configured")
)

var tracer = observability.Tracer("brandempire.shop/storefront/internal/catalog")

// APIError describes a non-2xx answer from the Catalog Service.
type APIError struct {
	Status  int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	return fmt.Sprintf("catalog: status=%d message=%s", e.Status, msg)
}

func parseAPIError(status int, body []byte) *APIError {
	out := &APIError{Status: status, Body: string(body)}
	var m map[string]any
	if json.Unmarshal(body, &m) == nil {
		if v, ok := m["message"].(string); ok {
			out.Message = v
		}
	}
	return out
}

// Doer executes HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues calls against the Catalog Service, always scoped to one tenant.
type Client struct {
	baseURL string
	tenant  string
	http    Doer
	logger  *zap.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = observability.OrNop(logger)
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// NewClient constructs a Catalog Service client.
func NewClient(baseURL, tenant string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tenant:  strings.TrimSpace(tenant),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tenant returns the tenant every request is scoped to.
func (c *Client) Tenant() string { return c.tenant }

// Categories returns the category tree.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.getList(ctx, "categories", nil, func(raw json.RawMessage) error {
		items, _, err := decodeList[Category](raw)
		out = items
		return err
	})
	return out, err
}

// Brands returns the brand list.
func (c *Client) Brands(ctx context.Context) ([]Brand, error) {
	var out []Brand
	err := c.getList(ctx, "brands", nil, func(raw json.RawMessage) error {
		items, _, err := decodeList[Brand](raw)
		out = items
		return err
	})
	return out, err
}

// Campaigns returns the running campaigns.
func (c *Client) Campaigns(ctx context.Context) ([]Campaign, error) {
	var out []Campaign
	err := c.getList(ctx, "campaigns", nil, func(raw json.RawMessage) error {
		items, _, err := decodeList[Campaign](raw)
		out = items
		return err
	})
	return out, err
}

// CategoryProducts lists products of a top-level category.
func (c *Client) CategoryProducts(ctx context.Context, id ID, page int) (Page, error) {
	return c.listing(ctx, pageQuery(page), "categories", id.String(), "products")
}

// SubCategoryProducts lists products of a subcategory.
func (c *Client) SubCategoryProducts(ctx context.Context, id ID, page int) (Page, error) {
	return c.listing(ctx, pageQuery(page), "subcategories", id.String(), "products")
}

// ChildCategoryProducts lists products of a child category.
func (c *Client) ChildCategoryProducts(ctx context.Context, id ID, page int) (Page, error) {
	return c.listing(ctx, pageQuery(page), "child-categories", id.String(), "products")
}

// BrandProducts lists products of a brand.
func (c *Client) BrandProducts(ctx context.Context, id ID, page int) (Page, error) {
	return c.listing(ctx, pageQuery(page), "brands", id.String(), "products")
}

// CampaignProducts lists products taking part in a campaign.
func (c *Client) CampaignProducts(ctx context.Context, id ID, page int) (Page, error) {
	return c.listing(ctx, pageQuery(page), "campaigns", id.String(), "products")
}

// NewArrivals lists products added within the last days. The endpoint is unpaginated.
func (c *Client) NewArrivals(ctx context.Context, days int) (Page, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	p, err := c.listing(ctx, q, "new-arrivals")
	p.LastPage = 0
	return p, err
}

// Search runs the fuzzy product search.
func (c *Client) Search(ctx context.Context, keyword string, page int) (Page, error) {
	q := pageQuery(page)
	q.Set("keyword", strings.TrimSpace(keyword))
	return c.listing(ctx, q, "search")
}

// FilterRequest selects products by attribute values on the server.
type FilterRequest struct {
	AttributeValueIDs []string
	Page              int
	CategoryID        ID
}

// FilterProducts calls the attribute-filter endpoint.
func (c *Client) FilterProducts(ctx context.Context, req FilterRequest) (Page, error) {
	body := map[string]any{
		"attribute_value_ids": req.AttributeValueIDs,
		"page":                max(req.Page, 1),
		tenantParam:           c.tenant,
	}
	if req.CategoryID != "" {
		body["category_id"] = req.CategoryID.String()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Page{}, err
	}
	var out Page
	err = c.do(ctx, http.MethodPost, []string{"products", "filter"}, nil, payload, func(env envelope) error {
		records, lastPage, err := decodeList[ProductRecord](env.Data)
		out = Page{Records: records, LastPage: max(lastPage, env.lastPage())}
		return err
	})
	return out, err
}

// Product fetches the detail record of one product.
func (c *Client) Product(ctx context.Context, id ID) (ProductRecord, error) {
	if strings.TrimSpace(id.String()) == "" {
		return ProductRecord{}, ErrNotFound
	}
	var out ProductRecord
	err := c.do(ctx, http.MethodGet, []string{"products", id.String()}, nil, nil, func(env envelope) error {
		raw := bytes.TrimSpace(env.Data)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return ErrNotFound
		}
		// some deployments wrap the record once more under "data"
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if raw[0] == '{' && json.Unmarshal(raw, &wrapped) == nil && len(bytes.TrimSpace(wrapped.Data)) > 0 && wrapped.Data[0] == '{' {
			raw = wrapped.Data
		}
		if raw[0] != '{' {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &out)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return ProductRecord{}, ErrNotFound
		}
		return ProductRecord{}, err
	}
	return out, nil
}

type envelope struct {
	Success    *Flag           `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		LastPage Number `json:"last_page"`
	} `json:"pagination"`
	Message Text `json:"message"`
}

func (e envelope) lastPage() int {
	if e.Pagination == nil {
		return 0
	}
	return e.Pagination.LastPage.Int()
}

func (c *Client) listing(ctx context.Context, q url.Values, segments ...string) (Page, error) {
	var out Page
	err := c.do(ctx, http.MethodGet, segments, q, nil, func(env envelope) error {
		records, lastPage, err := decodeList[ProductRecord](env.Data)
		out = Page{Records: records, LastPage: max(lastPage, env.lastPage())}
		return err
	})
	return out, err
}

func (c *Client) getList(ctx context.Context, segment string, q url.Values, decode func(json.RawMessage) error) error {
	return c.do(ctx, http.MethodGet, []string{segment}, q, nil, func(env envelope) error {
		return decode(env.Data)
	})
}

func (c *Client) do(ctx context.Context, method string, segments []string, q url.Values, body []byte, handle func(envelope) error) (err error) {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}
	endpoint, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return err
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set(tenantParam, c.tenant)
	endpoint += "?" + q.Encode()

	ctx, span := tracer.Start(ctx, "catalog "+strings.Join(segments, "/"))
	span.SetAttributes(attribute.String("http.method", method), attribute.String("catalog.tenant", c.tenant))
	defer func() { observability.EndSpan(span, err) }()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: %s %s: %w", method, strings.Join(segments, "/"), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("catalog: read body: %w", err)
	}
	c.logger.Debug("catalog request",
		zap.String("method", method),
		zap.String("path", strings.Join(segments, "/")),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, drain(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", strings.Join(segments, "/"), err)
	}
	if env.Success != nil && !bool(*env.Success) {
		if env.Message != "" {
			return fmt.Errorf("%w: %s", ErrUnsuccessful, env.Message)
		}
		return ErrUnsuccessful
	}
	return handle(env)
}

func pageQuery(page int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(max(page, 1)))
	return q
}

func drain(b []byte) []byte {
	if len(b) > 256 {
		return b[:256]
	}
	return b
}
