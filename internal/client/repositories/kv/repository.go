// Package kv is the local key/value table backing durable client storage.
package kv

import "context"

// Repository stores string values by key. Get reports whether the key exists.
type Repository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}
