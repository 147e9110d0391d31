package favorite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/kv"
)

type mockCatalog struct {
	products []product.Product
}

func (m *mockCatalog) Products(_ context.Context) ([]product.Product, error) {
	return m.products, nil
}

func ids(t *testing.T, m *Manager) []int {
	t.Helper()
	got, err := m.IDs(context.Background())
	require.NoError(t, err)
	return got
}

func TestManager_AddKeepsOrderWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore(), nil)

	require.NoError(t, m.Add(ctx, 3))
	require.NoError(t, m.Add(ctx, 1))
	require.NoError(t, m.Add(ctx, 3))
	require.NoError(t, m.Add(ctx, 2))

	assert.Equal(t, []int{3, 1, 2}, ids(t, m))
}

func TestManager_Remove(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore(), nil)
	require.NoError(t, m.Add(ctx, 1))
	require.NoError(t, m.Add(ctx, 2))

	ch, unsub := m.Subscribe()
	defer unsub()

	require.NoError(t, m.Remove(ctx, 5))
	assert.Len(t, ch, 0)

	require.NoError(t, m.Remove(ctx, 1))
	assert.Len(t, ch, 1)
	assert.Equal(t, []int{2}, ids(t, m))
}

func TestManager_ToggleIsItsOwnInverse(t *testing.T) {
	ctx := context.Background()

	for _, start := range []bool{false, true} {
		m := NewManager(kv.NewMemoryStore(), nil)
		if start {
			require.NoError(t, m.Add(ctx, 7))
		}

		require.NoError(t, m.Toggle(ctx, 7))
		mid, err := m.Contains(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, !start, mid)

		require.NoError(t, m.Toggle(ctx, 7))
		end, err := m.Contains(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, start, end)
	}
}

func TestManager_ConcurrentTogglesPairUp(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore(), nil)

	// An even number of toggles per id leaves the set empty only if no
	// toggle observed a stale snapshot.
	var wg sync.WaitGroup
	for id := range 10 {
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, m.Toggle(ctx, id))
			}()
		}
	}
	wg.Wait()

	assert.Empty(t, ids(t, m))
}

func TestManager_SharesSubstrateWithoutCollisions(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	m := NewManager(mem, nil)
	require.NoError(t, m.Add(ctx, 1))

	_, err := mem.Get(ctx, kv.NamespaceFavorites+idsKey)
	require.NoError(t, err)
}

func TestManager_Products(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore(), nil)
	catalog := &mockCatalog{products: []product.Product{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}}

	got, err := m.Products(ctx, catalog)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, m.Add(ctx, 2))
	require.NoError(t, m.Add(ctx, 9))
	require.NoError(t, m.Add(ctx, 1))

	got, err = m.Products(ctx, catalog)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ID)
	assert.Equal(t, 1, got[1].ID)
}
