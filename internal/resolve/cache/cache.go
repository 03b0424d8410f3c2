// Package cache holds the long-lived value caches behind @context:
// references. Unlike the per-call cache inside a resolution, these outlive
// calls and expire by TTL.
package cache

import "context"

// Cache stores string values by key. Get reports a miss with ok=false and a
// nil error; errors mean the backend itself failed.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
