package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"newsdesk/internal/domain/persistence"
	"newsdesk/pkg/errors"
)

// storeScript writes ARGV[1] unless the stored envelope already carries a
// version >= ARGV[2]. ARGV[3] is a TTL in milliseconds (0 keeps forever).
var storeScript = redis.NewScript(`
local ver = tonumber(ARGV[2])
if ver > 0 then
  local cur = redis.call('GET', KEYS[1])
  if cur then
    local ok, doc = pcall(cjson.decode, cur)
    if ok and type(doc) == 'table' and doc.version and tonumber(doc.version) >= ver then
      return 0
    end
  end
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

type envelope struct {
	Version int64  `json:"version"`
	Value   []byte `json:"value"`
}

// KVStore implements persistence.KV on top of Redis
type KVStore struct {
	client *redis.Client
}

// NewKVStore creates a new Redis-backed key-value store
func NewKVStore(client *redis.Client) *KVStore {
	return &KVStore{client: client}
}

var _ persistence.KV = (*KVStore)(nil)

// Load returns the stored value, ok=false when the key is absent
func (s *KVStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to load %s from redis", key)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, errors.Wrapf(err, "failed to decode envelope for %s", key)
	}

	return env.Value, true, nil
}

// Store writes the value; versioned writes never overwrite a newer version
func (s *KVStore) Store(ctx context.Context, key string, value []byte, opts persistence.StoreOptions) error {
	data, err := json.Marshal(envelope{Version: opts.Version, Value: value})
	if err != nil {
		return errors.Wrapf(err, "failed to encode envelope for %s", key)
	}

	if err := storeScript.Run(ctx, s.client, []string{key}, data, opts.Version, opts.TTL.Milliseconds()).Err(); err != nil {
		return errors.Wrapf(err, "failed to store %s to redis", key)
	}

	return nil
}
