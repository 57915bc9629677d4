package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"brandempire.shop/storefront/internal/catalog"
	"brandempire.shop/storefront/internal/config"
	"brandempire.shop/storefront/internal/delivery"
	"brandempire.shop/storefront/internal/localstore"
	mw "brandempire.shop/storefront/internal/middleware"
	"brandempire.shop/storefront/internal/observability"
	"brandempire.shop/storefront/internal/order"
	"brandempire.shop/storefront/internal/profile"
	"brandempire.shop/storefront/internal/richtext"
	"brandempire.shop/storefront/internal/sorting"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("storefront stopped", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logger.With(zap.String("env", cfg.Environment))

	fees, err := delivery.LoadRules(cfg.Delivery.RulesFile)
	if err != nil {
		return fmt.Errorf("load delivery rules: %w", err)
	}

	store, err := localstore.Open(cfg.Cart.StorePath)
	if err != nil {
		return fmt.Errorf("open cart store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close cart store", zap.Error(err))
		}
	}()

	hashKey := []byte(cfg.Profile.HashKey)
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
		logger.Warn("using an ephemeral profile cookie key; set STOREFRONT_PROFILE_HASH_KEY to keep carts across restarts")
	}
	cookies, err := profile.NewCookies(profile.CookieConfig{
		Name:     cfg.Profile.CookieName,
		HashKey:  hashKey,
		BlockKey: []byte(cfg.Profile.BlockKey),
		Secure:   cfg.Profile.CookieSecure,
	})
	if err != nil {
		return err
	}

	srv, err := newServer(serverDeps{
		Catalog: catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.TenantID,
			catalog.WithTimeout(cfg.Catalog.FetchTimeout),
			catalog.WithLogger(logger.Named("catalog")),
		),
		Orders: order.NewClient(cfg.Orders.BaseURL, cfg.Catalog.TenantID,
			order.WithHTTPClient(&http.Client{Timeout: cfg.Orders.Timeout}),
			order.WithLogger(logger.Named("order")),
		),
		Store:          store,
		Cookies:        cookies,
		Fees:           fees,
		Render:         richtext.New().Render,
		Listing:        cfg.Listing,
		Search:         cfg.Search,
		ImageBaseURL:   cfg.Catalog.ImageBaseURL,
		FetchTimeout:   cfg.Catalog.FetchTimeout,
		RegistrySize:   cfg.Profile.RegistrySize,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

// routes builds the router. Profile runs before Logger so request logs carry
// the profile id.
func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// Only trusted proxies should be able to set X-Forwarded-For in production.
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(mw.Profile(s.cookies, s.logger))
	r.Use(observability.TraceMiddleware)
	r.Use(mw.Logger(s.logger))
	r.Use(chimw.Timeout(s.requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/categories", s.handleCategories)
	r.Get("/brands", s.handleBrands)

	r.Get("/categories/{id}", s.handleListing(sorting.PageCategory))
	r.Get("/brands/{id}", s.handleListing(sorting.PageBrand))
	r.Get("/campaigns/{id}", s.handleListing(sorting.PageCampaign))
	r.Get("/new-arrivals", s.handleListing(sorting.PageNewArrivals))
	r.Get("/search", s.handleListing(sorting.PageSearch))
	r.Get("/search/suggest", s.handleSuggest)

	r.Get("/products/{id}", s.handleProduct)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.handleCartGet)
		r.Delete("/", s.handleCartClear)
		r.Put("/drawer", s.handleCartDrawer)
		r.Post("/items", s.handleCartAdd)
		r.Patch("/items/{id}", s.handleCartUpdate)
		r.Delete("/items/{id}", s.handleCartRemove)
	})

	r.Post("/checkout/delivery-fee", s.handleDeliveryFee)
	r.Post("/checkout/orders", s.handlePlaceOrder)
	r.Get("/orders/{invoice}", s.handleTrack)
	return r
}
