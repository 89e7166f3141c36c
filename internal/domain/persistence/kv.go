package persistence

import (
	"context"
	"time"
)

// StoreOptions qualify a write. A positive Version makes the write
// conditional: it is ignored unless newer than the stored version.
type StoreOptions struct {
	Version int64
	TTL     time.Duration // 0 means no expiry
}

// KV is the durability collaborator behind in-memory stores.
// Load reports absent keys with ok=false and a nil error.
type KV interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Store(ctx context.Context, key string, value []byte, opts StoreOptions) error
}

// KeyPrefix namespaces every key this module writes
const KeyPrefix = "newsdesk:"

func ProfileKey(userID string) string { return KeyPrefix + "profile:" + userID }

func InfluenceKey() string { return KeyPrefix + "influence" }
