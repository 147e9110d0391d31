package kv

import (
	"context"
	"sort"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	Store
	getErr error
	setErr error
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	value := []byte("hello")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'j'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got), "stored value must not alias caller buffer")

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWithPrefix_IsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	cache := WithPrefix(base, NamespaceCache)
	cart := WithPrefix(base, NamespaceCart)

	require.NoError(t, cache.Set(ctx, "items", []byte("cache")))
	require.NoError(t, cart.Set(ctx, "items", []byte("cart")))

	got, err := cache.Get(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, "cache", string(got))

	got, err = cart.Get(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, "cart", string(got))

	assert.Equal(t, 2, base.Len())

	keys, err := cache.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"items"}, keys)
}

func TestWithPrefix_Nested(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	nested := WithPrefix(WithPrefix(base, "a:"), "b:")

	require.NoError(t, nested.Set(ctx, "x", []byte("1")))
	require.NoError(t, nested.Set(ctx, "y", []byte("2")))

	_, err := base.Get(ctx, "a:b:x")
	require.NoError(t, err)

	keys, err := nested.Keys(ctx, "")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"x", "y"}, keys)
}

func TestLoadSaveJSON(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, found, err := LoadJSON[[]int](ctx, s, "ids")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SaveJSON(ctx, s, "ids", []int{3, 1, 2}))

	ids, found, err := LoadJSON[[]int](ctx, s, "ids")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int{3, 1, 2}, ids)
}

func TestLoadJSON_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupt payload", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "ids", []byte("{not json")))

		_, _, err := LoadJSON[[]int](ctx, s, "ids")
		var pErr *PersistenceError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, "decode", pErr.Op)
		assert.Equal(t, "ids", pErr.Key)
	})

	t.Run("backend failure", func(t *testing.T) {
		boom := errors.New("disk on fire")
		s := &failingStore{Store: NewMemoryStore(), getErr: boom}

		_, _, err := LoadJSON[[]int](ctx, s, "ids")
		require.ErrorIs(t, err, boom)
		var pErr *PersistenceError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, "load", pErr.Op)
	})

	t.Run("save failure", func(t *testing.T) {
		boom := errors.New("read-only")
		s := &failingStore{Store: NewMemoryStore(), setErr: boom}

		err := SaveJSON(ctx, s, "ids", []int{1})
		require.ErrorIs(t, err, boom)
		var pErr *PersistenceError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, "save", pErr.Op)
	})
}
