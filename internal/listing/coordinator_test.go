package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/facet"
	"brandempire.shop/storefront/internal/product"
	"brandempire.shop/storefront/internal/sorting"
)

type fakeSource struct {
	mu        sync.Mutex
	calls     []string
	pages     map[string]catalog.Page
	err       error
	hook      func(ctx context.Context, key string) error
	filterReq catalog.FilterRequest
}

func (f *fakeSource) serve(ctx context.Context, key string) (catalog.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	page, err, hook := f.pages[key], f.err, f.hook
	f.mu.Unlock()
	if hook != nil {
		if hookErr := hook(ctx, key); hookErr != nil {
			return catalog.Page{}, hookErr
		}
	}
	return page, err
}

func (f *fakeSource) calledKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func (f *fakeSource) CategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error) {
	return f.serve(ctx, "category:"+id.String())
}

func (f *fakeSource) SubCategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error) {
	return f.serve(ctx, "sub:"+id.String())
}

func (f *fakeSource) ChildCategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error) {
	return f.serve(ctx, "child:"+id.String())
}

func (f *fakeSource) BrandProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error) {
	return f.serve(ctx, "brand:"+id.String())
}

func (f *fakeSource) CampaignProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error) {
	return f.serve(ctx, "campaign:"+id.String())
}

func (f *fakeSource) NewArrivals(ctx context.Context, days int) (catalog.Page, error) {
	return f.serve(ctx, fmt.Sprintf("new:%d", days))
}

func (f *fakeSource) Search(ctx context.Context, keyword string, page int) (catalog.Page, error) {
	return f.serve(ctx, "search:"+keyword)
}

func (f *fakeSource) FilterProducts(ctx context.Context, req catalog.FilterRequest) (catalog.Page, error) {
	f.mu.Lock()
	f.filterReq = req
	f.mu.Unlock()
	return f.serve(ctx, "filter")
}

func rec(id string, price float64, sizes ...string) catalog.ProductRecord {
	r := catalog.ProductRecord{ID: catalog.ID(id), Name: catalog.Text("item " + id), RetailsPrice: catalog.Number(price)}
	for _, s := range sizes {
		r.Variants = append(r.Variants, catalog.VariantRecord{Name: catalog.Text(s), Quantity: 3})
	}
	return r
}

func newCoordinator(t *testing.T, src Source, mutate ...func(*Deps)) *Coordinator {
	t.Helper()
	deps := Deps{Source: src, Clock: func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }}
	for _, m := range mutate {
		m(&deps)
	}
	c, err := NewCoordinator(deps)
	require.NoError(t, err)
	return c
}

func ids(items []product.View) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestNewCoordinatorRequiresSource(t *testing.T) {
	_, err := NewCoordinator(Deps{})
	require.Error(t, err)
}

func TestPlan(t *testing.T) {
	attr := facet.NewState(0)
	attr.AttributeValues.Add("5")

	cases := []struct {
		name string
		q    Query
		want Strategy
	}{
		{"category", Query{Page: sorting.PageCategory, ID: "1"}, StrategyCategory},
		{"child wins over subs", Query{Page: sorting.PageCategory, ID: "1", SubCategoryIDs: []catalog.ID{"10"}, ChildCategoryID: "100"}, StrategyChildCategory},
		{"subs", Query{Page: sorting.PageCategory, ID: "1", SubCategoryIDs: []catalog.ID{"10", "11"}}, StrategySubCategories},
		{"brand", Query{Page: sorting.PageBrand, ID: "2"}, StrategyBrand},
		{"campaign", Query{Page: sorting.PageCampaign, ID: "3"}, StrategyCampaign},
		{"new arrivals", Query{Page: sorting.PageNewArrivals}, StrategyNewArrivals},
		{"search", Query{Page: sorting.PageSearch, Keyword: "saree"}, StrategySearch},
		{"attributes override", Query{Page: sorting.PageBrand, ID: "2", Filters: attr}, StrategyAttributeFilter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Plan(tc.q))
		})
	}
}

func TestCategoryPipelineFiltersAndSorts(t *testing.T) {
	src := &fakeSource{pages: map[string]catalog.Page{
		"category:1": {Records: []catalog.ProductRecord{
			rec("a", 900, "S", "M"),
			rec("b", 300, "S", "XL"),
			rec("c", 500, "L"),
		}, LastPage: 4},
	}}
	c := newCoordinator(t, src)

	filters := facet.NewState(0)
	filters.Sizes = facet.NewSet("M", "L")
	res := c.Load(context.Background(), Query{Page: sorting.PageCategory, ID: "1", Cursor: 2, Filters: filters, Sort: sorting.PriceLow})

	require.False(t, res.Failed)
	require.Equal(t, StrategyCategory, res.Strategy)
	require.Equal(t, []string{"c", "a"}, ids(res.Items))
	require.Equal(t, 2, res.Page)
	require.Equal(t, 4, res.LastPage)
	require.Equal(t, 2, res.Matched)
	require.Equal(t, []string{"S", "M", "XL", "L"}, res.Summary.Sizes)
}

func TestZeroFiltersUseDefaultPriceRange(t *testing.T) {
	src := &fakeSource{pages: map[string]catalog.Page{
		"brand:7": {Records: []catalog.ProductRecord{rec("a", 900), rec("b", 12000)}},
	}}
	res := newCoordinator(t, src).Load(context.Background(), Query{Page: sorting.PageBrand, ID: "7"})
	require.Equal(t, []string{"a"}, ids(res.Items))
	require.Equal(t, 1, res.LastPage)
}

func TestOpenCeilingWidensToDearestItem(t *testing.T) {
	src := &fakeSource{pages: map[string]catalog.Page{
		"brand:7": {Records: []catalog.ProductRecord{rec("a", 900), rec("b", 12000)}},
	}}
	filters := facet.NewState(0)
	filters.WidenToPage = true
	res := newCoordinator(t, src).Load(context.Background(), Query{Page: sorting.PageBrand, ID: "7", Filters: filters})
	require.Equal(t, []string{"a", "b"}, ids(res.Items))
	require.Equal(t, 12000.0, res.PriceMax)
}

func TestAttributeFilterKeepsCategoryScope(t *testing.T) {
	src := &fakeSource{pages: map[string]catalog.Page{
		"filter": {Records: []catalog.ProductRecord{rec("z", 100)}, LastPage: 2},
	}}
	filters := facet.NewState(0)
	filters.AttributeValues = facet.NewSet("41", "40")
	filters.Categories = facet.NewSet("999")

	res := newCoordinator(t, src).Load(context.Background(), Query{
		Page: sorting.PageCategory, ID: "1", SubCategoryIDs: []catalog.ID{"10"}, Filters: filters,
	})

	require.Equal(t, StrategyAttributeFilter, res.Strategy)
	require.Equal(t, []string{"filter"}, src.calledKeys())
	require.Equal(t, []string{"40", "41"}, src.filterReq.AttributeValueIDs)
	require.Equal(t, catalog.ID("10"), src.filterReq.CategoryID)
	require.Equal(t, []string{"z"}, ids(res.Items))
}

func TestSubCategoriesFetchedInParallelAndDeduped(t *testing.T) {
	var (
		mu      sync.Mutex
		waiting int
		release = make(chan struct{})
	)
	src := &fakeSource{
		pages: map[string]catalog.Page{
			"sub:10": {Records: []catalog.ProductRecord{rec("a", 100), rec("shared", 200)}, LastPage: 1},
			"sub:11": {Records: []catalog.ProductRecord{
				{ID: "shared", Name: "second copy", RetailsPrice: 999},
				rec("b", 300),
			}, LastPage: 3},
		},
		hook: func(ctx context.Context, key string) error {
			mu.Lock()
			waiting++
			if waiting == 2 {
				close(release)
			}
			mu.Unlock()
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	res := newCoordinator(t, src).Load(context.Background(), Query{
		Page: sorting.PageCategory, ID: "1", SubCategoryIDs: []catalog.ID{"10", "11"},
	})

	require.False(t, res.Failed)
	require.Equal(t, []string{"a", "shared", "b"}, ids(res.Items))
	require.Equal(t, "item shared", res.Items[1].Name)
	require.Equal(t, 3, res.LastPage)
	require.Equal(t, []string{"sub:10", "sub:11"}, src.calledKeys())
}

func TestFetchFailureDegradesToEmpty(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	res := newCoordinator(t, src).Load(context.Background(), Query{Page: sorting.PageCampaign, ID: "3", Cursor: 2})
	require.True(t, res.Failed)
	require.Empty(t, res.Items)
	require.NotNil(t, res.Items)
	require.Equal(t, 2, res.Page)
	require.Contains(t, res.SortKeys, sorting.Discount)
}

func TestFetchTimeout(t *testing.T) {
	src := &fakeSource{hook: func(ctx context.Context, key string) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	c := newCoordinator(t, src, func(d *Deps) { d.Timeout = 20 * time.Millisecond })

	start := time.Now()
	res := c.Load(context.Background(), Query{Page: sorting.PageSearch, Keyword: "panjabi"})
	require.True(t, res.Failed)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestNewArrivalsSlicedClientSide(t *testing.T) {
	records := make([]catalog.ProductRecord, 0, 45)
	for i := 0; i < 45; i++ {
		records = append(records, rec(fmt.Sprintf("p%02d", i), float64(100+i)))
	}
	src := &fakeSource{pages: map[string]catalog.Page{"new:30": {Records: records, LastPage: 99}}}
	c := newCoordinator(t, src)

	first := c.Load(context.Background(), Query{Page: sorting.PageNewArrivals})
	require.Len(t, first.Items, 20)
	require.Equal(t, 3, first.LastPage)
	require.Equal(t, 45, first.Matched)
	require.Equal(t, "p00", first.Items[0].ID)

	last := c.Load(context.Background(), Query{Page: sorting.PageNewArrivals, Cursor: 3, Sort: sorting.PriceHigh})
	require.Len(t, last.Items, 5)
	require.Equal(t, "p04", last.Items[0].ID)

	beyond := c.Load(context.Background(), Query{Page: sorting.PageNewArrivals, Cursor: 9})
	require.Empty(t, beyond.Items)
	require.Equal(t, 3, beyond.LastPage)

	custom := c.Load(context.Background(), Query{Page: sorting.PageNewArrivals, Days: 7})
	require.Empty(t, custom.Items)
	require.Contains(t, src.calledKeys(), "new:7")
}
