// Package facet filters product views by independent facets. Facets combine
// with AND; values inside one facet combine with OR.
package facet

import (
	"math"
	"sort"
	"strings"

	"brandempire.shop/storefront/internal/product"
)

// DefaultPriceCeiling is the upper price bound when a page supplies none.
const DefaultPriceCeiling = 10000.0

// Set is a string set; an empty set leaves its facet inactive.
type Set map[string]struct{}

// NewSet builds a set from values, ignoring blanks.
func NewSet(values ...string) Set {
	s := Set{}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v unless it is blank.
func (s Set) Add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

// Has reports membership.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// HasFold reports case-insensitive membership.
func (s Set) HasFold(v string) bool {
	if s.Has(v) {
		return true
	}
	for k := range s {
		if strings.EqualFold(k, v) {
			return true
		}
	}
	return false
}

// Values returns the members sorted.
func (s Set) Values() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// State is the full set of facet selections of one listing page.
type State struct {
	Categories      Set
	Brands          Set
	Colors          Set
	Sizes           Set
	AttributeValues Set
	PriceMin        float64
	PriceMax        float64
	// WidenToPage raises PriceMax to the page's PriceBound when the page
	// holds dearer items. Set when the shopper gave no upper bound.
	WidenToPage bool
	// DiscountFloor is a minimum percent discount; 0 disables the facet.
	DiscountFloor float64
}

// NewState returns an inactive state whose price range is [0, bound]. A bound
// of zero or less selects DefaultPriceCeiling.
func NewState(bound float64) State {
	if bound <= 0 {
		bound = DefaultPriceCeiling
	}
	return State{
		Categories:      Set{},
		Brands:          Set{},
		Colors:          Set{},
		Sizes:           Set{},
		AttributeValues: Set{},
		PriceMax:        bound,
	}
}

// ServerSide reports whether attribute values are selected, which moves
// filtering to the attribute-filter endpoint.
func (s State) ServerSide() bool { return len(s.AttributeValues) > 0 }

// Apply returns the items passing every active facet. items is not modified.
func Apply(items []product.View, s State) []product.View {
	out := make([]product.View, 0, len(items))
	for _, item := range items {
		if s.Keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// ForPage returns s with its price range settled for items: the upper bound
// is widened to PriceBound(items) when WidenToPage is set.
func (s State) ForPage(items []product.View) State {
	if s.WidenToPage {
		s.PriceMax = max(s.PriceMax, PriceBound(items))
	}
	return s
}

// Keep evaluates every facet against one item.
func (s State) Keep(item product.View) bool {
	// attribute values were resolved upstream together with the category scope
	if !s.ServerSide() && len(s.Categories) > 0 && !matchesCategory(s.Categories, item) {
		return false
	}
	if len(s.Brands) > 0 && !s.Brands.HasFold(item.Brand) {
		return false
	}
	if item.RawPrice < s.PriceMin {
		return false
	}
	if item.RawPrice > s.PriceMax {
		return false
	}
	if len(s.Colors) > 0 && !s.Colors.HasFold(item.Color) {
		return false
	}
	if len(s.Sizes) > 0 && !anySize(s.Sizes, item.Sizes) {
		return false
	}
	if s.DiscountFloor > 0 && item.RawDiscount < s.DiscountFloor {
		return false
	}
	return true
}

func matchesCategory(selected Set, item product.View) bool {
	for _, id := range []string{item.CategoryID, item.SubCategoryID, item.ChildCategoryID} {
		if id != "" && selected.Has(id) {
			return true
		}
	}
	return false
}

func anySize(selected Set, sizes []string) bool {
	for _, size := range sizes {
		if selected.HasFold(size) {
			return true
		}
	}
	return false
}

// PriceBound returns the highest raw price rounded up to a multiple of 100,
// or DefaultPriceCeiling when items is empty or priced above nothing.
func PriceBound(items []product.View) float64 {
	highest := 0.0
	for _, item := range items {
		if item.RawPrice > highest {
			highest = item.RawPrice
		}
	}
	if highest <= 0 {
		return DefaultPriceCeiling
	}
	return math.Ceil(highest/100) * 100
}

// Summary lists the values available for building filter controls.
type Summary struct {
	Brands     []string `json:"brands"`
	Colors     []string `json:"colors"`
	Sizes      []string `json:"sizes"`
	PriceBound float64  `json:"priceBound"`
}

// Summarize collects distinct brands, colors and sizes in first-seen order.
func Summarize(items []product.View) Summary {
	sum := Summary{Brands: []string{}, Colors: []string{}, Sizes: []string{}, PriceBound: PriceBound(items)}
	brands, colors, sizes := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for _, item := range items {
		sum.Brands = appendDistinct(sum.Brands, brands, item.Brand)
		sum.Colors = appendDistinct(sum.Colors, colors, item.Color)
		for _, size := range item.Sizes {
			sum.Sizes = appendDistinct(sum.Sizes, sizes, size)
		}
	}
	return sum
}

func appendDistinct(list []string, seen map[string]struct{}, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	key := strings.ToLower(v)
	if _, ok := seen[key]; ok {
		return list
	}
	seen[key] = struct{}{}
	return append(list, v)
}
