package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLoadsOnceAndEvicts(t *testing.T) {
	loads := map[string]int{}
	var evicted []string
	reg, err := NewRegistry(2,
		func(_ context.Context, id string) (string, error) {
			loads[id]++
			return "value-" + id, nil
		},
		func(id string, _ string) { evicted = append(evicted, id) },
	)
	require.NoError(t, err)
	ctx := context.Background()

	v, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "value-a", v)
	_, _ = reg.Get(ctx, "a")
	_, _ = reg.Get(ctx, "b")
	_, _ = reg.Get(ctx, "c")

	require.Equal(t, 1, loads["a"])
	require.Equal(t, []string{"a"}, evicted)
	require.Equal(t, 2, reg.Len())

	_, _ = reg.Get(ctx, "a")
	require.Equal(t, 2, loads["a"])

	reg.Remove("c")
	reg.Purge()
	require.Zero(t, reg.Len())
	require.Equal(t, []string{"a", "b", "c", "a"}, evicted)
}

func TestRegistryLoadError(t *testing.T) {
	reg, err := NewRegistry(1, func(context.Context, string) (int, error) { return 0, errors.New("nope") }, nil)
	require.NoError(t, err)
	_, err = reg.Get(context.Background(), "x")
	require.Error(t, err)
	require.Zero(t, reg.Len())

	_, err = NewRegistry[int](1, nil, nil)
	require.Error(t, err)
}

func newCookies(t *testing.T) *Cookies {
	t.Helper()
	c, err := NewCookies(CookieConfig{HashKey: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	return c
}

func TestCookieRoundTrip(t *testing.T) {
	c := newCookies(t)
	rec := httptest.NewRecorder()
	id, err := c.Issue(rec)
	require.NoError(t, err)
	require.Len(t, id, 26)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	got, ok := c.Read(req)
	require.True(t, ok)
	require.Equal(t, id, got)

	again := httptest.NewRecorder()
	ensured, err := c.Ensure(again, req)
	require.NoError(t, err)
	require.Equal(t, id, ensured)
	require.Empty(t, again.Result().Cookies())
}

func TestTamperedCookieIsRejected(t *testing.T) {
	c := newCookies(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: c.Name(), Value: "forged"})
	_, ok := c.Read(req)
	require.False(t, ok)

	rec := httptest.NewRecorder()
	id, err := c.Ensure(rec, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, rec.Result().Cookies(), 1)
}

func TestCookieConfigValidation(t *testing.T) {
	_, err := NewCookies(CookieConfig{})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewCookies(CookieConfig{HashKey: []byte("k"), BlockKey: []byte("short")})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestContextID(t *testing.T) {
	_, ok := IDFromContext(context.Background())
	require.False(t, ok)
	id, ok := IDFromContext(WithID(context.Background(), "01H"))
	require.True(t, ok)
	require.Equal(t, "01H", id)
}
