package main

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/facet"
	"brandempire.shop/storefront/internal/format"
	"brandempire.shop/storefront/internal/httpx"
	"brandempire.shop/storefront/internal/listing"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/product"
	"brandempire.shop/storefront/internal/sorting"
)

type categoryNode struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	BannerImage  string         `json:"bannerImage,omitempty"`
	ProductCount int            `json:"productCount"`
	Children     []categoryNode `json:"children,omitempty"`
}

func toCategoryNodes(tree []catalog.Category) []categoryNode {
	out := make([]categoryNode, 0, len(tree))
	for _, c := range tree {
		out = append(out, categoryNode{
			ID:           c.ID.String(),
			Name:         c.Name,
			BannerImage:  c.BannerImage,
			ProductCount: c.ProductCount,
			Children:     toCategoryNodes(c.Children),
		})
	}
	return out
}

func (s *server) handleCategories(w http.ResponseWriter, r *http.Request) {
	tree, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.upstreamError(w, r, "load categories", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": toCategoryNodes(tree)})
}

func (s *server) handleBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := s.catalog.Brands(r.Context())
	if err != nil {
		s.upstreamError(w, r, "load brands", err)
		return
	}
	type brandView struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image,omitempty"`
	}
	out := make([]brandView, 0, len(brands))
	for _, b := range brands {
		out = append(out, brandView{ID: b.ID.String(), Name: b.Name.String(), Image: b.Image.String()})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"brands": out})
}

// handleListing serves one listing page. Each profile has a single listing
// session: a request arriving while an older one is still loading supersedes
// it, and the older request answers 409.
func (s *server) handleListing(page sorting.Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := s.parseListingQuery(page, r)
		if err != nil {
			writeError(w, r, "invalid_query", err.Error(), http.StatusBadRequest)
			return
		}
		id, ok := s.profileID(w, r)
		if !ok {
			return
		}
		session, err := s.listings.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, "listing_unavailable", "could not open a listing session", http.StatusInternalServerError)
			return
		}
		res, err := session.Load(r.Context(), q)
		switch {
		case errors.Is(err, listing.ErrStale), errors.Is(err, listing.ErrClosed):
			writeSuperseded(w, r)
			return
		case err != nil:
			writeError(w, r, "listing_failed", "could not load products", http.StatusInternalServerError)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, listingResponse{
			Result:      res,
			PriceLabels: s.priceLabels(res.Items),
		})
	}
}

type listingResponse struct {
	listing.Result
	// PriceLabels maps product id to its display price.
	PriceLabels map[string]string `json:"priceLabels"`
}

func (s *server) priceLabels(items []product.View) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		out[item.ID] = format.Currency(item.Price, s.symbol)
	}
	return out
}

var errMissingID = errors.New("missing id")

func (s *server) parseListingQuery(page sorting.Page, r *http.Request) (listing.Query, error) {
	values := r.URL.Query()
	q := listing.Query{
		Page:            page,
		ID:              catalog.ID(strings.TrimSpace(chi.URLParam(r, "id"))),
		ChildCategoryID: catalog.ID(strings.TrimSpace(values.Get("child"))),
		Keyword:         strings.TrimSpace(values.Get("q")),
		Cursor:          intParam(values, "page", 1),
		Sort:            sorting.ParseKey(values.Get("sort")),
		Days:            intParam(values, "days", 0),
	}
	switch page {
	case sorting.PageCategory, sorting.PageBrand, sorting.PageCampaign:
		if q.ID == "" {
			return listing.Query{}, errMissingID
		}
	}
	for _, sub := range values["sub"] {
		if sub = strings.TrimSpace(sub); sub != "" {
			q.SubCategoryIDs = append(q.SubCategoryIDs, catalog.ID(sub))
		}
	}

	filters := facet.NewState(s.priceCeiling)
	for param, set := range map[string]facet.Set{
		"category": filters.Categories,
		"brand":    filters.Brands,
		"color":    filters.Colors,
		"size":     filters.Sizes,
		"attr":     filters.AttributeValues,
	} {
		for _, v := range values[param] {
			set.Add(v)
		}
	}
	filters.PriceMin = floatParam(values, "min", 0)
	if ceiling, ok := priceParam(values, "max"); ok {
		filters.PriceMax = ceiling
	} else {
		// the configured ceiling, raised to the page's dearest item
		filters.WidenToPage = true
	}
	if filters.PriceMax < filters.PriceMin {
		filters.PriceMin, filters.PriceMax = filters.PriceMax, filters.PriceMin
	}
	filters.DiscountFloor = floatParam(values, "discount", 0)
	q.Filters = filters
	return q, nil
}

func (s *server) handleProduct(w http.ResponseWriter, r *http.Request) {
	id := catalog.ID(strings.TrimSpace(chi.URLParam(r, "id")))
	rec, err := s.catalog.Product(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, r, "product_not_found", "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.upstreamError(w, r, "load product", err)
		return
	}
	detail := product.NewDetail(rec, product.Options{
		Resolver:     s.pricer,
		ImageBaseURL: s.imageBase,
		Now:          s.now(),
		SelectedSize: strings.TrimSpace(r.URL.Query().Get("size")),
	}, s.render)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"product":    detail,
		"priceLabel": format.Currency(detail.Price, s.symbol),
		"mrpLabel":   format.Currency(detail.MRP, s.symbol),
	})
}

func (s *server) upstreamError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observability.FromContext(r.Context()).Warn(op, zap.Error(err))
	writeError(w, r, "upstream_unavailable", "the catalog is unavailable, please retry", http.StatusBadGateway)
}

func intParam(values url.Values, key string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(values.Get(key))); err == nil && n > 0 {
		return n
	}
	return fallback
}

func floatParam(values url.Values, key string, fallback float64) float64 {
	if f, ok := priceParam(values, key); ok {
		return f
	}
	return fallback
}

// priceParam reports whether key holds a non-negative number.
func priceParam(values url.Values, key string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(values.Get(key)), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
