package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/format"
	"brandempire.shop/storefront/internal/httpx"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/order"
)

func (s *server) handleDeliveryFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		City     string `json:"city"`
		District string `json:"district"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, "invalid_body", "request body must be JSON", http.StatusBadRequest)
		return
	}
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	quote := s.checkout.QuoteDelivery(store, req.City, req.District)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"quote":    quote,
		"feeLabel": format.Currency(quote.Fee, s.symbol),
		"cart":     s.cartResponse(store),
	})
}

func (s *server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var form order.Form
	if err := httpx.DecodeJSON(r, &form); err != nil {
		writeError(w, r, "invalid_body", "request body must be JSON", http.StatusBadRequest)
		return
	}
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	receipt, err := s.checkout.Submit(r.Context(), store, form)
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_checkout", "please correct the highlighted fields", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"fields": verr.Fields()}))
		return
	case errors.Is(err, order.ErrRejected):
		observability.FromContext(r.Context()).Warn("order rejected", zap.Error(err))
		writeError(w, r, "order_rejected", "the order could not be accepted, please review your cart", http.StatusConflict)
		return
	case err != nil:
		observability.FromContext(r.Context()).Error("place order", zap.Error(err))
		writeError(w, r, "order_unavailable", "could not place the order, please retry", http.StatusBadGateway)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"receipt":    receipt,
		"totalLabel": format.Currency(receipt.Total, s.symbol),
	})
}

func (s *server) handleTrack(w http.ResponseWriter, r *http.Request) {
	tracking, err := s.orders.Track(r.Context(), chi.URLParam(r, "invoice"))
	if errors.Is(err, order.ErrInvoiceNotFound) {
		writeError(w, r, "invoice_not_found", "no order with that invoice number", http.StatusNotFound)
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Warn("track order", zap.Error(err))
		writeError(w, r, "order_unavailable", "order tracking is unavailable, please retry", http.StatusBadGateway)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"order":      tracking,
		"totalLabel": format.CurrencyNumber(tracking.Total, s.symbol),
	})
}
