package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": db}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "p1", "cart")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.Set(ctx, "p1", "cart", []byte(`[1]`)))
			require.NoError(t, store.Set(ctx, "p1", "cart", []byte(`[1,2]`)))
			require.NoError(t, store.Set(ctx, "p2", "cart", []byte(`[]`)))

			v, ok, err := store.Get(ctx, "p1", "cart")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, `[1,2]`, string(v))

			require.NoError(t, store.Delete(ctx, "p1", "cart"))
			_, ok, err = store.Get(ctx, "p1", "cart")
			require.NoError(t, err)
			require.False(t, ok)

			v, ok, err = store.Get(ctx, "p2", "cart")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, `[]`, string(v))
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "carts.db")

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, "p", "cart", []byte(`{"a":1}`)))
	require.NoError(t, db.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get(ctx, "p", "cart")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(v))
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Set(context.Background(), "p", "k", nil), ErrClosed)
}

func TestOpenFallsBackToMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
}
