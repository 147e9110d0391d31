package sqlite

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/kv"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Set(ctx, "cart:items", []byte(`[{"productId":1,"quantity":2}]`)))
	require.NoError(t, s.Set(ctx, "cart:items", []byte(`[]`)))

	got, err := s.Get(ctx, "cart:items")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	require.NoError(t, s.Delete(ctx, "cart:items"))
	_, err = s.Get(ctx, "cart:items")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_KeysPrefixIsExact(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, k := range []string{"cache:products", "cache:category:men's clothing", "Cache:other", "cache_x", "cart:items"} {
		require.NoError(t, s.Set(ctx, k, []byte("v")))
	}

	keys, err := s.Keys(ctx, "cache:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"cache:category:men's clothing", "cache:products"}, keys)

	all, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "favorites:ids", []byte(`[4,2]`)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Get(ctx, "favorites:ids")
	require.NoError(t, err)
	assert.Equal(t, `[4,2]`, string(got))
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Ping(ctx))
}
