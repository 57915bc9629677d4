// Package listing runs the shared listing pipeline of every product page:
// pick a fetch strategy, fetch and dedupe records, normalise them into priced
// views, then filter, sort and paginate.
package listing

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/facet"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/pricing"
	"brandempire.shop/storefront/internal/product"
	"brandempire.shop/storefront/internal/sorting"
)

const (
	defaultPageSize        = 20
	defaultTimeout         = 10 * time.Second
	defaultNewArrivalsDays = 30
)

var errSourceRequired = errors.New("listing: source is required")

var tracer = observability.Tracer("brandempire.shop/storefront/internal/listing")

// Source is the subset of the Catalog Service the coordinator calls.
type Source interface {
	CategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error)
	SubCategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error)
	ChildCategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error)
	BrandProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error)
	CampaignProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error)
	NewArrivals(ctx context.Context, days int) (catalog.Page, error)
	Search(ctx context.Context, keyword string, page int) (catalog.Page, error)
	FilterProducts(ctx context.Context, req catalog.FilterRequest) (catalog.Page, error)
}

// Strategy names the endpoint a query was answered from.
type Strategy string

const (
	StrategyAttributeFilter Strategy = "attribute-filter"
	StrategyCategory        Strategy = "category"
	StrategySubCategories   Strategy = "subcategories"
	StrategyChildCategory   Strategy = "child-category"
	StrategyBrand           Strategy = "brand"
	StrategyCampaign        Strategy = "campaign"
	StrategyNewArrivals     Strategy = "new-arrivals"
	StrategySearch          Strategy = "search"
)

// Query describes one listing request.
type Query struct {
	Page sorting.Page
	// ID is the category, brand or campaign id of the page.
	ID              catalog.ID
	SubCategoryIDs  []catalog.ID
	ChildCategoryID catalog.ID
	Keyword         string
	// Cursor is the 1-based page number.
	Cursor  int
	Filters facet.State
	Sort    sorting.Key
	// Days overrides the new-arrivals window.
	Days int
}

// Plan returns the single fetch strategy serving q.
func Plan(q Query) Strategy {
	if q.Filters.ServerSide() {
		return StrategyAttributeFilter
	}
	switch q.Page {
	case sorting.PageBrand:
		return StrategyBrand
	case sorting.PageCampaign:
		return StrategyCampaign
	case sorting.PageNewArrivals:
		return StrategyNewArrivals
	case sorting.PageSearch:
		return StrategySearch
	}
	switch {
	case q.ChildCategoryID != "":
		return StrategyChildCategory
	case len(q.SubCategoryIDs) > 0:
		return StrategySubCategories
	default:
		return StrategyCategory
	}
}

// Result is one rendered listing page.
type Result struct {
	Items    []product.View `json:"items"`
	Page     int            `json:"page"`
	LastPage int            `json:"lastPage"`
	// Matched counts the items passing the filters before slicing.
	Matched  int           `json:"matched"`
	Summary  facet.Summary `json:"facets"`
	// PriceMin and PriceMax are the price range applied to the page.
	PriceMin float64       `json:"priceMin"`
	PriceMax float64       `json:"priceMax"`
	Sort     sorting.Key   `json:"sort"`
	SortKeys []sorting.Key `json:"sortKeys"`
	Strategy Strategy      `json:"strategy"`
	// Failed is set when the fetch failed and the page degraded to empty.
	Failed bool `json:"failed,omitempty"`
}

// Deps wires the coordinator.
type Deps struct {
	Source          Source
	Resolver        pricing.Resolver
	ImageBaseURL    string
	PageSize        int
	Timeout         time.Duration
	NewArrivalsDays int
	Clock           func() time.Time
	Logger          *zap.Logger
}

// Coordinator answers listing queries.
type Coordinator struct {
	source       Source
	resolver     pricing.Resolver
	imageBaseURL string
	pageSize     int
	timeout      time.Duration
	days         int
	now          func() time.Time
	logger       *zap.Logger
}

// NewCoordinator validates deps and applies defaults.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	if deps.Source == nil {
		return nil, errSourceRequired
	}
	c := &Coordinator{
		source:       deps.Source,
		resolver:     deps.Resolver,
		imageBaseURL: strings.TrimSpace(deps.ImageBaseURL),
		pageSize:     deps.PageSize,
		timeout:      deps.Timeout,
		days:         deps.NewArrivalsDays,
		now:          deps.Clock,
		logger:       observability.OrNop(deps.Logger),
	}
	if c.resolver.Symbol == "" {
		c.resolver = pricing.NewResolver("")
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.days <= 0 {
		c.days = defaultNewArrivalsDays
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// PageSize is the client-side slice size for unpaginated endpoints.
func (c *Coordinator) PageSize() int { return c.pageSize }

// Load runs the pipeline for q. Fetch failures are logged and produce an
// empty, Failed result; Load itself never fails.
func (c *Coordinator) Load(ctx context.Context, q Query) Result {
	q.Cursor = max(q.Cursor, 1)
	if q.Filters.Categories == nil {
		q.Filters = mergeDefaults(q.Filters)
	}
	strategy := Plan(q)
	res := Result{
		Items:    []product.View{},
		Page:     q.Cursor,
		LastPage: q.Cursor,
		Sort:     q.Sort,
		SortKeys: sorting.KeysFor(q.Page),
		Strategy: strategy,
		Summary:  facet.Summarize(nil),
		PriceMin: q.Filters.PriceMin,
		PriceMax: q.Filters.PriceMax,
	}
	if res.Sort == "" {
		res.Sort = sorting.Recommended
	}

	ctx, span := tracer.Start(ctx, "listing.Load")
	span.SetAttributes(attribute.String("listing.strategy", string(strategy)), attribute.Int("listing.page", q.Cursor))
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	records, lastPage, err := c.fetch(fetchCtx, strategy, q)
	if err != nil {
		level := c.logger.Warn
		if ctx.Err() != nil {
			level = c.logger.Debug
		}
		level("listing fetch failed",
			zap.String("strategy", string(strategy)),
			zap.String("id", q.ID.String()),
			zap.Int("page", q.Cursor),
			zap.Error(err),
		)
		res.Failed = true
		return res
	}

	views := product.NormalizeAll(dedupe(records), product.Options{
		Resolver:     c.resolver,
		ImageBaseURL: c.imageBaseURL,
		Now:          c.now(),
	})
	res.Summary = facet.Summarize(views)
	filters := q.Filters.ForPage(views)
	res.PriceMin, res.PriceMax = filters.PriceMin, filters.PriceMax
	filtered := facet.Apply(views, filters)
	sorted := sorting.Apply(filtered, res.Sort)
	res.Matched = len(sorted)

	if strategy == StrategyNewArrivals {
		res.Items, res.LastPage = c.slice(sorted, q.Cursor)
		return res
	}
	res.Items = sorted
	if lastPage > 0 {
		res.LastPage = lastPage
	}
	return res
}

func (c *Coordinator) slice(items []product.View, page int) ([]product.View, int) {
	last := max((len(items)+c.pageSize-1)/c.pageSize, 1)
	start := (page - 1) * c.pageSize
	if start >= len(items) {
		return []product.View{}, last
	}
	end := min(start+c.pageSize, len(items))
	return items[start:end], last
}

func (c *Coordinator) fetch(ctx context.Context, strategy Strategy, q Query) ([]catalog.ProductRecord, int, error) {
	var (
		page catalog.Page
		err  error
	)
	switch strategy {
	case StrategyAttributeFilter:
		page, err = c.source.FilterProducts(ctx, catalog.FilterRequest{
			AttributeValueIDs: q.Filters.AttributeValues.Values(),
			Page:              q.Cursor,
			CategoryID:        categoryScope(q),
		})
	case StrategySubCategories:
		return c.fetchSubCategories(ctx, q)
	case StrategyChildCategory:
		page, err = c.source.ChildCategoryProducts(ctx, q.ChildCategoryID, q.Cursor)
	case StrategyCategory:
		page, err = c.source.CategoryProducts(ctx, q.ID, q.Cursor)
	case StrategyBrand:
		page, err = c.source.BrandProducts(ctx, q.ID, q.Cursor)
	case StrategyCampaign:
		page, err = c.source.CampaignProducts(ctx, q.ID, q.Cursor)
	case StrategyNewArrivals:
		days := q.Days
		if days <= 0 {
			days = c.days
		}
		page, err = c.source.NewArrivals(ctx, days)
		page.LastPage = 0
	case StrategySearch:
		page, err = c.source.Search(ctx, q.Keyword, q.Cursor)
	}
	return page.Records, page.LastPage, err
}

// fetchSubCategories issues one call per selected subcategory in parallel and
// concatenates the results in selection order.
func (c *Coordinator) fetchSubCategories(ctx context.Context, q Query) ([]catalog.ProductRecord, int, error) {
	pages := make([]catalog.Page, len(q.SubCategoryIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range q.SubCategoryIDs {
		g.Go(func() error {
			page, err := c.source.SubCategoryProducts(gctx, id, q.Cursor)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	var (
		records  []catalog.ProductRecord
		lastPage int
	)
	for _, page := range pages {
		records = append(records, page.Records...)
		lastPage = max(lastPage, page.LastPage)
	}
	return records, lastPage, nil
}

// categoryScope is the most specific category the attribute filter keeps.
func categoryScope(q Query) catalog.ID {
	if q.Page != sorting.PageCategory && q.Page != "" {
		return ""
	}
	if q.ChildCategoryID != "" {
		return q.ChildCategoryID
	}
	if len(q.SubCategoryIDs) == 1 {
		return q.SubCategoryIDs[0]
	}
	return q.ID
}

// dedupe drops repeated product ids, keeping the first occurrence.
func dedupe(records []catalog.ProductRecord) []catalog.ProductRecord {
	seen := make(map[catalog.ID]struct{}, len(records))
	out := make([]catalog.ProductRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID != "" {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
		}
		out = append(out, rec)
	}
	return out
}

func mergeDefaults(s facet.State) facet.State {
	base := facet.NewState(s.PriceMax)
	base.PriceMin = s.PriceMin
	base.WidenToPage = s.WidenToPage
	base.DiscountFloor = s.DiscountFloor
	for dst, src := range map[*facet.Set]facet.Set{
		&base.Categories:      s.Categories,
		&base.Brands:          s.Brands,
		&base.Colors:          s.Colors,
		&base.Sizes:           s.Sizes,
		&base.AttributeValues: s.AttributeValues,
	} {
		for v := range src {
			dst.Add(v)
		}
	}
	return base
}
