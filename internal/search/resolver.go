// Package search resolves free-text queries either to a category listing,
// when the query names a category exactly, or to the fuzzy product search.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/pricing"
	"brandempire.shop/storefront/internal/product"
)

const (
	defaultCategoryTTL = 5 * time.Minute
	defaultTimeout     = 10 * time.Second
)

var errSourceRequired = errors.New("search: source is required")

// Source is the subset of the Catalog Service search needs.
type Source interface {
	Categories(ctx context.Context) ([]catalog.Category, error)
	CategoryProducts(ctx context.Context, id catalog.ID, page int) (catalog.Page, error)
	Search(ctx context.Context, keyword string, page int) (catalog.Page, error)
}

// Kind tells how a query was resolved.
type Kind string

const (
	KindNone     Kind = "none"
	KindCategory Kind = "category"
	KindSearch   Kind = "search"
)

// CategoryMatch is the category a query resolved to.
type CategoryMatch struct {
	ID   catalog.ID `json:"id"`
	Name string     `json:"name"`
}

// Resolution is the outcome of one query.
type Resolution struct {
	Query    string         `json:"query"`
	Kind     Kind           `json:"kind"`
	Category *CategoryMatch `json:"category,omitempty"`
	Items    []product.View `json:"items"`
	LastPage int            `json:"lastPage"`
	Failed   bool           `json:"failed,omitempty"`
}

// Deps wires the resolver.
type Deps struct {
	Source       Source
	Resolver     pricing.Resolver
	ImageBaseURL string
	CategoryTTL  time.Duration
	Timeout      time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Resolver answers queries. Safe for concurrent use.
type Resolver struct {
	source    Source
	pricer    pricing.Resolver
	imageBase string
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger

	refresh    singleflight.Group
	mu         sync.Mutex
	categories []catalog.Category
	expires    time.Time
}

// NewResolver validates deps and applies defaults.
func NewResolver(deps Deps) (*Resolver, error) {
	if deps.Source == nil {
		return nil, errSourceRequired
	}
	r := &Resolver{
		source:    deps.Source,
		pricer:    deps.Resolver,
		imageBase: deps.ImageBaseURL,
		ttl:       deps.CategoryTTL,
		timeout:   deps.Timeout,
		now:       deps.Clock,
		logger:    observability.OrNop(deps.Logger),
	}
	if r.pricer.Symbol == "" {
		r.pricer = pricing.NewResolver("")
	}
	if r.ttl <= 0 {
		r.ttl = defaultCategoryTTL
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Resolve issues exactly one listing call: the category listing on an exact
// case-insensitive category-name match, the product search otherwise.
// Failures are logged and yield an empty, Failed resolution.
func (r *Resolver) Resolve(ctx context.Context, query string) Resolution {
	query = strings.TrimSpace(query)
	res := Resolution{Query: query, Kind: KindNone, Items: []product.View{}}
	if query == "" {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		page catalog.Page
		err  error
	)
	if match, ok := r.MatchCategory(ctx, query); ok {
		res.Kind = KindCategory
		res.Category = &CategoryMatch{ID: match.ID, Name: match.Name}
		page, err = r.source.CategoryProducts(ctx, match.ID, 1)
	} else {
		res.Kind = KindSearch
		page, err = r.source.Search(ctx, query, 1)
	}
	if err != nil {
		log := r.logger.Warn
		if errors.Is(err, context.Canceled) {
			log = r.logger.Debug
		}
		log("search resolution failed", zap.String("query", query), zap.String("kind", string(res.Kind)), zap.Error(err))
		res.Failed = true
		return res
	}
	res.Items = product.NormalizeAll(page.Records, product.Options{
		Resolver:     r.pricer,
		ImageBaseURL: r.imageBase,
		Now:          r.now(),
	})
	res.LastPage = max(page.LastPage, 1)
	return res
}

// MatchCategory finds a category, subcategory or child category whose name
// equals query under Unicode case folding.
func (r *Resolver) MatchCategory(ctx context.Context, query string) (catalog.Category, bool) {
	folded := fold(query)
	if folded == "" {
		return catalog.Category{}, false
	}
	var found catalog.Category
	var ok bool
	walk(r.categoryTree(ctx), func(c catalog.Category) bool {
		if fold(c.Name) == folded {
			found, ok = c, true
			return false
		}
		return true
	})
	return found, ok
}

// categoryTree returns the cached tree, refreshing it after the TTL. A failed
// refresh keeps serving the stale tree. Concurrent refreshes share one
// upstream call, and a caller whose ctx ends stops waiting for it.
func (r *Resolver) categoryTree(ctx context.Context) []catalog.Category {
	r.mu.Lock()
	cached, fresh := r.categories, r.categories != nil && r.now().Before(r.expires)
	r.mu.Unlock()
	if fresh {
		return cached
	}

	ch := r.refresh.DoChan("categories", func() (any, error) {
		// shared by every waiter, so it must not end with the first caller
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		tree, err := r.source.Categories(fetchCtx)
		if err != nil {
			return nil, err
		}
		if tree == nil {
			tree = []catalog.Category{}
		}
		r.mu.Lock()
		r.categories = tree
		r.expires = r.now().Add(r.ttl)
		r.mu.Unlock()
		return tree, nil
	})

	select {
	case <-ctx.Done():
		return cached
	case res := <-ch:
		if res.Err != nil {
			r.logger.Warn("category refresh failed", zap.Error(res.Err))
			return cached
		}
		return res.Val.([]catalog.Category)
	}
}

func walk(tree []catalog.Category, visit func(catalog.Category) bool) bool {
	for _, c := range tree {
		if !visit(c) || !walk(c.Children, visit) {
			return false
		}
	}
	return true
}

// fold builds a fresh Caser per call since Casers are stateful.
func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
