package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/oklog/ulid/v2"
)

const (
	defaultCookieName = "be_profile"
	defaultLifetime   = 365 * 24 * time.Hour
)

// ErrInvalidConfig reports unusable cookie settings.
var ErrInvalidConfig = errors.New("profile: invalid cookie config")

// CookieConfig configures the profile cookie.
type CookieConfig struct {
	Name     string
	HashKey  []byte
	BlockKey []byte
	Secure   bool
	Lifetime time.Duration
	Now      func() time.Time
}

type cookieValue struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Cookies issues and verifies the signed cookie naming a browser profile.
type Cookies struct {
	cfg   CookieConfig
	codec *securecookie.SecureCookie
}

// NewCookies builds the cookie codec. HashKey is required; BlockKey enables
// encryption when set.
func NewCookies(cfg CookieConfig) (*Cookies, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = defaultCookieName
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var block []byte
	if len(cfg.BlockKey) > 0 {
		block = cfg.BlockKey
	}
	codec := securecookie.New(cfg.HashKey, block)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))
	return &Cookies{cfg: cfg, codec: codec}, nil
}

// Name is the cookie name.
func (c *Cookies) Name() string { return c.cfg.Name }

// Read returns the profile id carried by r, or false when the cookie is
// missing, tampered with or expired.
func (c *Cookies) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.cfg.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var v cookieValue
	if err := c.codec.Decode(c.cfg.Name, cookie.Value, &v); err != nil {
		return "", false
	}
	if _, err := ulid.ParseStrict(v.ID); err != nil {
		return "", false
	}
	return v.ID, true
}

// Issue mints a new profile id and writes its cookie.
func (c *Cookies) Issue(w http.ResponseWriter) (string, error) {
	now := c.cfg.Now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	encoded, err := c.codec.Encode(c.cfg.Name, cookieValue{ID: id, CreatedAt: now})
	if err != nil {
		return "", fmt.Errorf("profile: encode cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.Name,
		Value:    encoded,
		Path:     "/",
		Secure:   c.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  now.Add(c.cfg.Lifetime),
		MaxAge:   int(c.cfg.Lifetime.Seconds()),
	})
	return id, nil
}

// Ensure returns the profile id of r, issuing a cookie when there is none.
func (c *Cookies) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if id, ok := c.Read(r); ok {
		return id, nil
	}
	return c.Issue(w)
}

type contextKey struct{}

// WithID stores the profile id on ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IDFromContext returns the profile id stored on ctx.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
