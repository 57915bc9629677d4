package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultFetchTimeout     = 10 * time.Second
	defaultSearchDebounce   = 500 * time.Millisecond
	defaultCategoryCacheTTL = 5 * time.Minute
	defaultPageSize         = 20
	defaultNewArrivalsDays  = 30
	defaultPriceCeiling     = 10000
	defaultCurrencySymbol   = "৳"
	defaultCartStorePath    = "storefront.db"
	defaultCookieName       = "BE_PROFILE"
	defaultRegistrySize     = 4096
	defaultEnvironment      = "local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Catalog     CatalogConfig
	Orders      OrdersConfig
	Listing     ListingConfig
	Search      SearchConfig
	Cart        CartConfig
	Profile     ProfileConfig
	Delivery    DeliveryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// CatalogConfig points at the upstream Catalog Service.
type CatalogConfig struct {
	BaseURL      string
	TenantID     string
	ImageBaseURL string
	FetchTimeout time.Duration
}

// OrdersConfig points at the upstream Order Service.
type OrdersConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ListingConfig tunes the listing pipeline.
type ListingConfig struct {
	PageSize        int
	NewArrivalsDays int
	PriceCeiling    float64
	CurrencySymbol  string
}

// SearchConfig tunes the search resolver.
type SearchConfig struct {
	Debounce         time.Duration
	CategoryCacheTTL time.Duration
}

// CartConfig locates the durable cart storage.
type CartConfig struct {
	StorePath string
}

// ProfileConfig controls the signed browser-profile cookie and per-profile registries.
type ProfileConfig struct {
	CookieName   string
	HashKey      string
	BlockKey     string
	CookieSecure bool
	RegistrySize int
}

// DeliveryConfig optionally overrides the built-in delivery fee rules.
type DeliveryConfig struct {
	RulesFile string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, .env overrides and environment variables.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	// PORT is what most container platforms inject.
	port := stringWithDefault(lookup, "STOREFRONT_PORT", "")
	if port == "" {
		port = stringWithDefault(lookup, "PORT", defaultPort)
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENV", defaultEnvironment)),
		Server: ServerConfig{
			Port:           port,
			ReadTimeout:    durationWithDefault(lookup, "STOREFRONT_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "STOREFRONT_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "STOREFRONT_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "STOREFRONT_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Catalog: CatalogConfig{
			BaseURL:      strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_API_BASE_URL", ""), "/"),
			TenantID:     stringWithDefault(lookup, "STOREFRONT_TENANT_ID", ""),
			ImageBaseURL: strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_IMAGE_BASE_URL", ""), "/"),
			FetchTimeout: durationWithDefault(lookup, "STOREFRONT_FETCH_TIMEOUT", defaultFetchTimeout),
		},
		Orders: OrdersConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_ORDER_BASE_URL", ""), "/"),
			Timeout: durationWithDefault(lookup, "STOREFRONT_ORDER_TIMEOUT", defaultFetchTimeout),
		},
		Listing: ListingConfig{
			PageSize:        intWithDefault(lookup, "STOREFRONT_PAGE_SIZE", defaultPageSize),
			NewArrivalsDays: intWithDefault(lookup, "STOREFRONT_NEW_ARRIVALS_DAYS", defaultNewArrivalsDays),
			PriceCeiling:    floatWithDefault(lookup, "STOREFRONT_PRICE_CEILING", defaultPriceCeiling),
			CurrencySymbol:  stringWithDefault(lookup, "STOREFRONT_CURRENCY_SYMBOL", defaultCurrencySymbol),
		},
		Search: SearchConfig{
			Debounce:         durationWithDefault(lookup, "STOREFRONT_SEARCH_DEBOUNCE", defaultSearchDebounce),
			CategoryCacheTTL: durationWithDefault(lookup, "STOREFRONT_CATEGORY_CACHE_TTL", defaultCategoryCacheTTL),
		},
		Cart: CartConfig{
			StorePath: stringWithDefault(lookup, "STOREFRONT_CART_STORE_PATH", defaultCartStorePath),
		},
		Profile: ProfileConfig{
			CookieName:   stringWithDefault(lookup, "STOREFRONT_PROFILE_COOKIE", defaultCookieName),
			HashKey:      stringWithDefault(lookup, "STOREFRONT_PROFILE_HASH_KEY", ""),
			BlockKey:     stringWithDefault(lookup, "STOREFRONT_PROFILE_BLOCK_KEY", ""),
			CookieSecure: boolWithDefault(lookup, "STOREFRONT_PROFILE_COOKIE_SECURE", false),
			RegistrySize: intWithDefault(lookup, "STOREFRONT_PROFILE_REGISTRY_SIZE", defaultRegistrySize),
		},
		Delivery: DeliveryConfig{
			RulesFile: stringWithDefault(lookup, "STOREFRONT_DELIVERY_RULES_FILE", ""),
		},
	}

	// Orders live behind the same gateway unless told otherwise.
	if cfg.Orders.BaseURL == "" {
		cfg.Orders.BaseURL = cfg.Catalog.BaseURL
	}
	if cfg.Environment == "prod" {
		cfg.Profile.CookieSecure = true
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if !isAbsoluteURL(cfg.Catalog.BaseURL) {
		missing = append(missing, "Catalog.BaseURL")
	}
	if strings.TrimSpace(cfg.Catalog.TenantID) == "" {
		missing = append(missing, "Catalog.TenantID")
	}
	if cfg.Catalog.FetchTimeout <= 0 {
		missing = append(missing, "Catalog.FetchTimeout")
	}
	if cfg.Listing.PageSize <= 0 {
		missing = append(missing, "Listing.PageSize")
	}
	if cfg.Listing.PriceCeiling <= 0 {
		missing = append(missing, "Listing.PriceCeiling")
	}
	if cfg.Search.Debounce < 0 {
		missing = append(missing, "Search.Debounce")
	}
	if strings.TrimSpace(cfg.Cart.StorePath) == "" {
		missing = append(missing, "Cart.StorePath")
	}
	if cfg.Profile.RegistrySize <= 0 {
		missing = append(missing, "Profile.RegistrySize")
	}
	if cfg.Environment == "prod" && len(cfg.Profile.HashKey) < 32 {
		missing = append(missing, "Profile.HashKey")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
