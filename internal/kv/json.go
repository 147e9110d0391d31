package kv

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
)

// LoadJSON decodes the value under key into a T. A missing key yields the
// zero T and found=false. Failures are reported as *PersistenceError.
func LoadJSON[T any](ctx context.Context, store Store, key string) (v T, found bool, err error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return v, false, nil
		}
		return v, false, &PersistenceError{Op: "load", Key: key, Err: err}
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, &PersistenceError{Op: "decode", Key: key, Err: err}
	}
	return v, true, nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON[T any](ctx context.Context, store Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &PersistenceError{Op: "encode", Key: key, Err: err}
	}
	if err := store.Set(ctx, key, data); err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	return nil
}
