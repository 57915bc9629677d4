// Package order places orders with the Order Service and tracks invoices.
package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/observability"
)

const (
	defaultTimeout    = 10 * time.Second
	idempotencyHeader = "Idempotency-Key"
)

var (
	// ErrInvoiceNotFound is returned when tracking finds no such invoice.
	ErrInvoiceNotFound = errors.New("order: invoice not found")
	// ErrRejected is returned when the service answers success=false.
	ErrRejected = errors.New("order: rejected")
	// ErrNotConfigured is returned by a client without a base URL.
	ErrNotConfigured = errors.New("order: base url not configured")
)

var tracer = observability.Tracer("brandempire.shop/storefront/internal/order")

// Client issues order placement and tracking calls.
type Client struct {
	baseURL string
	tenant  string
	http    *http.Client
	logger  *zap.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = observability.OrNop(logger) }
}

// NewClient constructs an Order Service client scoped to tenant.
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

// Customer is the buyer block of an order.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Address is the delivery address block of an order.
type Address struct {
	Address  string `json:"address"`
	District string `json:"district"`
	City     string `json:"city"`
}

// Line is one ordered product.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

// Request is the order payload.
type Request struct {
	Customer    Customer `json:"customer"`
	Address     Address  `json:"shipping_address"`
	Items       []Line   `json:"items"`
	DeliveryFee int64    `json:"delivery_fee"`
	Subtotal    int64    `json:"subtotal"`
	Total       int64    `json:"total"`
	PaymentMode string   `json:"payment_mode"`
	Note        string   `json:"note,omitempty"`
	// IdempotencyKey is sent as a header; a ULID is generated when empty.
	IdempotencyKey string `json:"-"`
}

// Confirmation is the service's answer to a placed order.
type Confirmation struct {
	InvoiceID string `json:"invoiceId"`
	Message   string `json:"message,omitempty"`
}

// PlaceOrder submits req. A success=false answer is ErrRejected.
func (c *Client) PlaceOrder(ctx context.Context, req Request) (Confirmation, error) {
	body := struct {
		Request
		Tenant string `json:"tenant"`
	}{Request: req, Tenant: c.tenant}
	payload, err := json.Marshal(body)
	if err != nil {
		return Confirmation{}, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = ulid.Make().String()
	}

	var out struct {
		Success   *catalog.Flag `json:"success"`
		InvoiceID catalog.Text  `json:"invoice_id"`
		Invoice   catalog.Text  `json:"invoice"`
		Message   catalog.Text  `json:"message"`
	}
	status, err := c.do(ctx, http.MethodPost, []string{"orders"}, payload, map[string]string{idempotencyHeader: key}, &out)
	if err != nil {
		return Confirmation{}, err
	}
	if status >= 300 || (out.Success != nil && !bool(*out.Success)) {
		return Confirmation{}, rejection(status, out.Message.String())
	}
	invoice := strings.TrimSpace(out.InvoiceID.String())
	if invoice == "" {
		invoice = strings.TrimSpace(out.Invoice.String())
	}
	if invoice == "" {
		return Confirmation{}, fmt.Errorf("%w: no invoice id in response", ErrRejected)
	}
	return Confirmation{InvoiceID: invoice, Message: out.Message.String()}, nil
}

// Tracking is the status of a placed order.
type Tracking struct {
	InvoiceID    string         `json:"invoiceId"`
	Status       string         `json:"status"`
	CustomerName string         `json:"customerName,omitempty"`
	Total        float64        `json:"total"`
	DeliveryFee  float64        `json:"deliveryFee"`
	PlacedAt     time.Time      `json:"placedAt"`
	Items        []TrackedItem  `json:"items"`
	History      []TrackingStep `json:"history,omitempty"`
}

// TrackedItem is one line of a tracked order.
type TrackedItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// TrackingStep is one status transition.
type TrackingStep struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Track looks an invoice up. Unknown invoices are ErrInvoiceNotFound.
func (c *Client) Track(ctx context.Context, invoice string) (Tracking, error) {
	invoice = strings.TrimSpace(invoice)
	if invoice == "" {
		return Tracking{}, ErrInvoiceNotFound
	}
	var out struct {
		Success *catalog.Flag   `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	status, err := c.do(ctx, http.MethodGet, []string{"orders", invoice}, nil, nil, &out)
	if err != nil {
		return Tracking{}, err
	}
	if status == http.StatusNotFound || (status < 300 && out.Success != nil && !bool(*out.Success)) {
		return Tracking{}, ErrInvoiceNotFound
	}
	if status >= 300 {
		return Tracking{}, fmt.Errorf("order: track status %d", status)
	}
	var data trackingPayload
	if len(bytes.TrimSpace(out.Data)) == 0 || json.Unmarshal(out.Data, &data) != nil {
		return Tracking{}, ErrInvoiceNotFound
	}
	return data.toTracking(invoice), nil
}

type trackingPayload struct {
	InvoiceID    catalog.Text   `json:"invoice_id"`
	Status       catalog.Text   `json:"status"`
	CustomerName catalog.Text   `json:"customer_name"`
	Total        catalog.Number `json:"total"`
	DeliveryFee  catalog.Number `json:"delivery_fee"`
	CreatedAt    catalog.Text   `json:"created_at"`
	Items        []struct {
		Name     catalog.Text   `json:"name"`
		Quantity catalog.Number `json:"quantity"`
		Price    catalog.Number `json:"price"`
	} `json:"items"`
	History []struct {
		Status catalog.Text `json:"status"`
		At     catalog.Text `json:"created_at"`
	} `json:"history"`
}

func (p trackingPayload) toTracking(invoice string) Tracking {
	t := Tracking{
		InvoiceID:    defaultString(p.InvoiceID.String(), invoice),
		Status:       defaultString(p.Status.String(), "pending"),
		CustomerName: strings.TrimSpace(p.CustomerName.String()),
		Total:        p.Total.Float(),
		DeliveryFee:  p.DeliveryFee.Float(),
		PlacedAt:     catalog.ParseTime(p.CreatedAt.String()),
		Items:        []TrackedItem{},
	}
	for _, item := range p.Items {
		t.Items = append(t.Items, TrackedItem{Name: item.Name.String(), Quantity: item.Quantity.Int(), Price: item.Price.Float()})
	}
	for _, step := range p.History {
		t.History = append(t.History, TrackingStep{Status: step.Status.String(), At: catalog.ParseTime(step.At.String())})
	}
	return t
}

// do sends one request and decodes a JSON body into out when there is one.
// Non-2xx statuses are returned, not treated as errors, so callers can map
// them onto domain outcomes.
func (c *Client) do(ctx context.Context, method string, segments []string, payload []byte, headers map[string]string, out any) (status int, err error) {
	if c == nil || c.baseURL == "" {
		return 0, ErrNotConfigured
	}
	endpoint, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return 0, err
	}
	endpoint += "?" + url.Values{"tenant": []string{c.tenant}}.Encode()

	ctx, span := tracer.Start(ctx, "order "+segments[0])
	span.SetAttributes(attribute.String("http.method", method))
	defer func() { observability.EndSpan(span, err) }()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("order: %s %s: %w", method, strings.Join(segments, "/"), err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("order: read body: %w", err)
	}
	c.logger.Debug("order request",
		zap.String("method", method),
		zap.String("path", strings.Join(segments, "/")),
		zap.Int("status", resp.StatusCode),
	)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("order: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func rejection(status int, message string) error {
	message = strings.TrimSpace(message)
	switch {
	case message != "":
		return fmt.Errorf("%w: %s", ErrRejected, message)
	case status >= 300:
		return fmt.Errorf("%w: status %d", ErrRejected, status)
	default:
		return ErrRejected
	}
}

func defaultString(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}
