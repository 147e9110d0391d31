package kv

import (
	"context"
	"strings"
)

// Namespaces used by the application. They share one substrate and must never
// overlap.
const (
	NamespaceCache     = "cache:"
	NamespaceCart      = "cart:"
	NamespaceFavorites = "favorites:"
)

type prefixed struct {
	store  Store
	prefix string
}

// WithPrefix scopes store to keys starting with prefix. Keys passed to and
// returned from the wrapper are relative to the prefix.
func WithPrefix(store Store, prefix string) Store {
	if p, ok := store.(*prefixed); ok {
		return &prefixed{store: p.store, prefix: p.prefix + prefix}
	}
	return &prefixed{store: store, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.store.Keys(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, p.prefix)
	}
	return keys, nil
}
