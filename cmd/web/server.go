package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/cart"
	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/config"
	"brandempire.shop/storefront/internal/delivery"
	"brandempire.shop/storefront/internal/httpx"
	"brandempire.shop/storefront/internal/listing"
	"brandempire.shop/storefront/internal/localstore"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/order"
	"brandempire.shop/storefront/internal/pricing"
	"brandempire.shop/storefront/internal/product"
	"brandempire.shop/storefront/internal/profile"
	"brandempire.shop/storefront/internal/search"
)

// catalogService is everything the storefront reads from the Catalog Service.
type catalogService interface {
	listing.Source
	Categories(ctx context.Context) ([]catalog.Category, error)
	Brands(ctx context.Context) ([]catalog.Brand, error)
	Product(ctx context.Context, id catalog.ID) (catalog.ProductRecord, error)
}

// orderService places and tracks orders.
type orderService interface {
	order.Placer
	Track(ctx context.Context, invoice string) (order.Tracking, error)
}

type serverDeps struct {
	Catalog        catalogService
	Orders         orderService
	Store          localstore.Store
	Cookies        *profile.Cookies
	Fees           delivery.Calculator
	Render         product.RenderFunc
	Listing        config.ListingConfig
	Search         config.SearchConfig
	ImageBaseURL   string
	FetchTimeout   time.Duration
	RegistrySize   int
	RequestTimeout time.Duration
	Clock          func() time.Time
	Logger         *zap.Logger
}

type server struct {
	catalog  catalogService
	orders   orderService
	cookies  *profile.Cookies
	listing  *listing.Coordinator
	search   *search.Resolver
	checkout *order.Checkout
	carts    *profile.Registry[*cart.Store]
	listings *profile.Registry[*listing.Session]
	searches *profile.Registry[*search.Session]

	pricer         pricing.Resolver
	render         product.RenderFunc
	imageBase      string
	symbol         string
	priceCeiling   float64
	requestTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

var (
	errCatalogRequired = errors.New("web: catalog service is required")
	errOrdersRequired  = errors.New("web: order service is required")
	errStoreRequired   = errors.New("web: cart store is required")
	errCookiesRequired = errors.New("web: profile cookies are required")
)

func newServer(deps serverDeps) (*server, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errCatalogRequired
	case deps.Orders == nil:
		return nil, errOrdersRequired
	case deps.Store == nil:
		return nil, errStoreRequired
	case deps.Cookies == nil:
		return nil, errCookiesRequired
	}
	logger := observability.OrNop(deps.Logger)
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	pricer := pricing.NewResolver(deps.Listing.CurrencySymbol)

	coord, err := listing.NewCoordinator(listing.Deps{
		Source:          deps.Catalog,
		Resolver:        pricer,
		ImageBaseURL:    deps.ImageBaseURL,
		PageSize:        deps.Listing.PageSize,
		Timeout:         deps.FetchTimeout,
		NewArrivalsDays: deps.Listing.NewArrivalsDays,
		Clock:           now,
		Logger:          logger.Named("listing"),
	})
	if err != nil {
		return nil, err
	}
	resolver, err := search.NewResolver(search.Deps{
		Source:       deps.Catalog,
		Resolver:     pricer,
		ImageBaseURL: deps.ImageBaseURL,
		CategoryTTL:  deps.Search.CategoryCacheTTL,
		Timeout:      deps.FetchTimeout,
		Clock:        now,
		Logger:       logger.Named("search"),
	})
	if err != nil {
		return nil, err
	}
	checkout, err := order.NewCheckout(order.CheckoutDeps{
		Placer: deps.Orders,
		Fees:   deps.Fees,
		Logger: logger.Named("checkout"),
	})
	if err != nil {
		return nil, err
	}

	cartLogger := logger.Named("cart")
	carts, err := profile.NewRegistry(deps.RegistrySize,
		func(ctx context.Context, id string) (*cart.Store, error) {
			return cart.Open(ctx, deps.Store, id, cartLogger)
		},
		func(_ string, store *cart.Store) { store.Retire() })
	if err != nil {
		return nil, err
	}
	listings, err := profile.NewRegistry(deps.RegistrySize,
		func(context.Context, string) (*listing.Session, error) { return coord.NewSession(), nil },
		func(_ string, s *listing.Session) { s.Close() })
	if err != nil {
		return nil, err
	}
	searches, err := profile.NewRegistry(deps.RegistrySize,
		func(context.Context, string) (*search.Session, error) {
			return resolver.NewSession(deps.Search.Debounce), nil
		},
		func(_ string, s *search.Session) { s.Close() })
	if err != nil {
		return nil, err
	}

	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &server{
		catalog:        deps.Catalog,
		orders:         deps.Orders,
		cookies:        deps.Cookies,
		listing:        coord,
		search:         resolver,
		checkout:       checkout,
		carts:          carts,
		listings:       listings,
		searches:       searches,
		pricer:         pricer,
		render:         deps.Render,
		imageBase:      deps.ImageBaseURL,
		symbol:         pricer.Symbol,
		priceCeiling:   deps.Listing.PriceCeiling,
		requestTimeout: timeout,
		now:            now,
		logger:         logger,
	}, nil
}

// Close cancels every in-flight listing and search session.
func (s *server) Close() {
	s.listings.Purge()
	s.searches.Purge()
}

func (s *server) profileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := profile.IDFromContext(r.Context())
	if !ok {
		writeError(w, r, "profile_missing", "request carries no browser profile", http.StatusInternalServerError)
	}
	return id, ok
}

func (s *server) cartFor(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	id, ok := s.profileID(w, r)
	if !ok {
		return nil, false
	}
	store, err := s.carts.Get(r.Context(), id)
	if err != nil {
		observability.FromContext(r.Context()).Error("load cart", zap.Error(err))
		writeError(w, r, "cart_unavailable", "could not load the cart", http.StatusInternalServerError)
		return nil, false
	}
	return store, true
}

func writeError(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

// writeSuperseded answers a request whose work was replaced by a newer one
// from the same profile.
func writeSuperseded(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, "superseded", "a newer request from this browser replaced this one", http.StatusConflict)
}
