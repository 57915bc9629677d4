// Package sorting orders product views. Every ordering is stable.
package sorting

import (
	"slices"
	"strings"

	"brandempire.shop/storefront/internal/product"
)

// Key selects an ordering.
type Key string

const (
	Recommended Key = "recommended"
	PriceLow    Key = "price-low"
	PriceHigh   Key = "price-high"
	// Newest reverses the current order; the catalog exposes no reliable timestamp.
	Newest   Key = "newest"
	Discount Key = "discount"
)

// Page identifies the kind of listing page, which decides the offered keys.
type Page string

const (
	PageCategory    Page = "category"
	PageBrand       Page = "brand"
	PageCampaign    Page = "campaign"
	PageNewArrivals Page = "new-arrivals"
	PageSearch      Page = "search"
)

// ParseKey maps a query value onto a Key; unknown values are Recommended.
func ParseKey(raw string) Key {
	switch k := Key(strings.ToLower(strings.TrimSpace(raw))); k {
	case PriceLow, PriceHigh, Newest, Discount:
		return k
	default:
		return Recommended
	}
}

// KeysFor lists the keys a page offers, default first.
func KeysFor(page Page) []Key {
	keys := []Key{Recommended, PriceLow, PriceHigh, Newest}
	if page == PageCampaign {
		keys = append(keys, Discount)
	}
	return keys
}

// Apply returns a sorted copy of items; items is left untouched.
func Apply(items []product.View, key Key) []product.View {
	out := slices.Clone(items)
	if out == nil {
		out = []product.View{}
	}
	switch key {
	case PriceLow:
		slices.SortStableFunc(out, func(a, b product.View) int { return compare(a.RawPrice, b.RawPrice) })
	case PriceHigh:
		slices.SortStableFunc(out, func(a, b product.View) int { return compare(b.RawPrice, a.RawPrice) })
	case Discount:
		slices.SortStableFunc(out, func(a, b product.View) int { return compare(b.RawDiscount, a.RawDiscount) })
	case Newest:
		slices.Reverse(out)
	}
	return out
}

func compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
