// Package store is the per-trigger key/value persistence the host hands to every piece.
//
// Values are opaque bytes; GetJSON and PutJSON cover the common case of JSON
// documents. An absent key is a valid state and is reported as found == false,
// never as an error.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists values by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON reads key and decodes it into T. Missing keys return the zero T and false.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return v, true, nil
}

// PutJSON encodes v under key. A nil v clears the key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	if v == nil {
		return s.Delete(ctx, key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	if string(raw) == "null" {
		return s.Delete(ctx, key)
	}
	return s.Put(ctx, key, raw)
}

// Scoped prefixes every key with prefix + "/". Close is a no-op on the scoped
// view; the parent owns the connection.
func Scoped(s Store, prefix string) Store {
	return &scoped{parent: s, prefix: prefix + "/"}
}

type scoped struct {
	parent Store
	prefix string
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.parent.Get(ctx, s.prefix+key)
}

func (s *scoped) Put(ctx context.Context, key string, value []byte) error {
	return s.parent.Put(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.parent.Delete(ctx, s.prefix+key)
}

func (s *scoped) Close() error { return nil }
