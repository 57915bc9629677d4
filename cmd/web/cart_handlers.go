package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/cart"
	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/format"
	"brandempire.shop/storefront/internal/httpx"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/product"
)

type cartResponse struct {
	cart.Snapshot
	SubtotalLabel    string `json:"subtotalLabel"`
	DeliveryFeeLabel string `json:"deliveryFeeLabel"`
	TotalLabel       string `json:"totalLabel"`
}

func (s *server) cartResponse(store *cart.Store) cartResponse {
	snap := store.Snapshot()
	return cartResponse{
		Snapshot:         snap,
		SubtotalLabel:    format.Currency(snap.Subtotal, s.symbol),
		DeliveryFeeLabel: format.Currency(snap.DeliveryFee, s.symbol),
		TotalLabel:       format.Currency(snap.Total, s.symbol),
	}
}

func (s *server) handleCartGet(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.cartResponse(store))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// handleCartAdd prices the line from a fresh catalog read; client-supplied
// prices are never trusted.
func (s *server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, "invalid_body", "request body must be JSON", http.StatusBadRequest)
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Size = strings.TrimSpace(req.Size)
	if req.ProductID == "" {
		writeError(w, r, "invalid_item", "productId is required", http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}

	rec, err := s.catalog.Product(r.Context(), catalog.ID(req.ProductID))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, r, "product_not_found", "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.upstreamError(w, r, "load product for cart", err)
		return
	}
	view := product.Normalize(rec, product.Options{
		Resolver:     s.pricer,
		ImageBaseURL: s.imageBase,
		Now:          s.now(),
		SelectedSize: req.Size,
	})
	if len(view.Sizes) > 0 {
		if req.Size == "" {
			writeError(w, r, "size_required", "please select a size", http.StatusBadRequest)
			return
		}
		if !view.HasSize(req.Size) {
			writeError(w, r, "invalid_size", "the selected size does not exist for this product", http.StatusBadRequest)
			return
		}
	}

	item, err := store.AddProduct(r.Context(), view, req.Quantity, req.Size, req.Color)
	if err != nil {
		s.cartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"item": item,
		"cart": s.cartResponse(store),
	})
}

type updateItemRequest struct {
	Size     string `json:"size"`
	Color    string `json:"color"`
	Quantity int    `json:"quantity"`
}

func (s *server) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, "invalid_body", "request body must be JSON", http.StatusBadRequest)
		return
	}
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	key := cart.NewKey(chi.URLParam(r, "id"), req.Size, req.Color)
	if err := store.UpdateQuantity(r.Context(), key, req.Quantity); err != nil {
		s.cartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.cartResponse(store))
}

// handleCartRemove identifies the line by path id plus size and color query
// parameters.
func (s *server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	key := cart.NewKey(chi.URLParam(r, "id"), q.Get("size"), q.Get("color"))
	if err := store.Remove(r.Context(), key); err != nil {
		s.cartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.cartResponse(store))
}

func (s *server) handleCartClear(w http.ResponseWriter, r *http.Request) {
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	if err := store.Clear(r.Context()); err != nil {
		s.cartError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.cartResponse(store))
}

func (s *server) handleCartDrawer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Open bool `json:"open"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, "invalid_body", "request body must be JSON", http.StatusBadRequest)
		return
	}
	store, ok := s.cartFor(w, r)
	if !ok {
		return
	}
	store.SetOpen(req.Open)
	httpx.WriteJSON(w, http.StatusOK, s.cartResponse(store))
}

func (s *server) cartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, r, "invalid_quantity", "quantity must be at least 1", http.StatusBadRequest)
	case errors.Is(err, cart.ErrOutOfStock):
		writeError(w, r, "out_of_stock", "the selected option is out of stock", http.StatusConflict)
	case errors.Is(err, cart.ErrItemNotFound):
		writeError(w, r, "item_not_found", "no such line in the cart", http.StatusNotFound)
	case errors.Is(err, cart.ErrRetired):
		writeError(w, r, "cart_reloaded", "the cart was reloaded, please retry", http.StatusConflict)
	default:
		observability.FromContext(r.Context()).Error("cart mutation", zap.Error(err))
		writeError(w, r, "cart_unavailable", "could not save the cart", http.StatusInternalServerError)
	}
}
