package order

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlaceOrderSendsTenantAndIdempotencyKey(t *testing.T) {
	var (
		gotKey    string
		gotTenant string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/orders", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		gotTenant = r.URL.Query().Get("tenant")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"success":true,"invoice_id":"INV-1001","message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", "brand-empire")
	conf, err := c.PlaceOrder(context.Background(), Request{
		Customer:       Customer{Name: "Rahim", Phone: "01712345678"},
		Items:          []Line{{ProductID: "42", Quantity: 2, Price: 750}},
		Subtotal:       1500,
		DeliveryFee:    70,
		Total:          1570,
		PaymentMode:    "cod",
		IdempotencyKey: "fixed-key",
	})
	require.NoError(t, err)
	require.Equal(t, "INV-1001", conf.InvoiceID)
	require.Equal(t, "fixed-key", gotKey)
	require.Equal(t, "brand-empire", gotTenant)
	require.Equal(t, "brand-empire", gotBody["tenant"])
	require.EqualValues(t, 1570, gotBody["total"])
	_, hasKey := gotBody["IdempotencyKey"]
	require.False(t, hasKey)
}

func TestPlaceOrderGeneratesKeyAndFallsBackToInvoiceField(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		_, _ = w.Write([]byte(`{"success":"1","invoice":123}`))
	}))
	defer srv.Close()

	conf, err := NewClient(srv.URL, "t").PlaceOrder(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "123", conf.InvoiceID)
	require.Len(t, gotKey, 26)
}

func TestPlaceOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"stock changed"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").PlaceOrder(context.Background(), Request{})
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "stock changed")
}

func TestPlaceOrderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").PlaceOrder(context.Background(), Request{})
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "500")
}

func TestTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/INV-7":
			_, _ = w.Write([]byte(`{"success":true,"data":{
				"status":"shipped","customer_name":"Karim","total":"1570.00","delivery_fee":70,
				"created_at":"2024-03-01 10:00:00",
				"items":[{"name":"Shirt","quantity":"2","price":750}],
				"history":[{"status":"pending","created_at":"2024-03-01 10:00:00"}]}}`))
		case "/orders/GONE":
			_, _ = w.Write([]byte(`{"success":false}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "t")
	ctx := context.Background()

	got, err := c.Track(ctx, " INV-7 ")
	require.NoError(t, err)
	require.Equal(t, "INV-7", got.InvoiceID)
	require.Equal(t, "shipped", got.Status)
	require.Equal(t, "Karim", got.CustomerName)
	require.InDelta(t, 1570.0, got.Total, 0.001)
	require.Len(t, got.Items, 1)
	require.Equal(t, 2, got.Items[0].Quantity)
	require.Len(t, got.History, 1)

	_, err = c.Track(ctx, "GONE")
	require.ErrorIs(t, err, ErrInvoiceNotFound)
	_, err = c.Track(ctx, "MISSING")
	require.ErrorIs(t, err, ErrInvoiceNotFound)
	_, err = c.Track(ctx, "")
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestUnconfiguredClient(t *testing.T) {
	_, err := NewClient("", "t").PlaceOrder(context.Background(), Request{})
	require.ErrorIs(t, err, ErrNotConfigured)
}
