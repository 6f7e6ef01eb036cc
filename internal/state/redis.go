package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/example/skinscan/internal/apiclient"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "skinscan:state"

// KV is the part of Redis RedisStore needs. Read leaves missing keys out of
// the result. Write applies every set and delete in one transaction.
type KV interface {
	Read(ctx context.Context, keys ...string) (map[string]string, error)
	Write(ctx context.Context, set map[string]string, del []string) error
}

// RedisKV implements KV with MGET and MULTI/EXEC.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a connected client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Read fetches keys in one round trip.
func (c *RedisKV) Read(ctx context.Context, keys ...string) (map[string]string, error) {
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

// Write stores set and removes del atomically. Values never expire.
func (c *RedisKV) Write(ctx context.Context, set map[string]string, del []string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range set {
			pipe.Set(ctx, k, v, 0)
		}
		if len(del) > 0 {
			pipe.Del(ctx, del...)
		}
		return nil
	})
	return err
}

// sessionEntry is what lives under the session key.
type sessionEntry struct {
	SessionID   string             `json:"session_id"`
	AccessToken string             `json:"access_token,omitempty"`
	Consent     *apiclient.Consent `json:"consent,omitempty"`
}

// RedisStore splits the snapshot over two keys: <key>:device holds the
// install's device token and <key>:session the session and its consent.
// Clearing the session deletes the session key and leaves the device key.
type RedisStore struct {
	mu         sync.Mutex
	kv         KV
	deviceKey  string
	sessionKey string
}

// NewRedisStore returns a store persisting under the key prefix.
func NewRedisStore(kv KV, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{kv: kv, deviceKey: key + ":device", sessionKey: key + ":session"}
}

// Load reads the snapshot; missing keys are empty fields.
func (r *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(ctx)
}

// Update reads, applies fn and writes both keys back in one transaction.
func (r *RedisStore) Update(ctx context.Context, fn func(*Snapshot)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.read(ctx)
	if err != nil {
		return err
	}
	fn(&snap)

	set := map[string]string{}
	var del []string
	if snap.DeviceToken != "" {
		set[r.deviceKey] = snap.DeviceToken
	} else {
		del = append(del, r.deviceKey)
	}
	if snap.SessionID == "" && snap.Consent == nil {
		del = append(del, r.sessionKey)
	} else {
		data, err := json.Marshal(sessionEntry{SessionID: snap.SessionID, AccessToken: snap.AccessToken, Consent: snap.Consent})
		if err != nil {
			return fmt.Errorf("state: encode: %w", err)
		}
		set[r.sessionKey] = string(data)
	}

	if err := r.kv.Write(ctx, set, del); err != nil {
		return fmt.Errorf("%w: redis: %v", ErrStorePersist, err)
	}
	return nil
}

func (r *RedisStore) read(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	vals, err := r.kv.Read(ctx, r.deviceKey, r.sessionKey)
	if err != nil {
		return snap, fmt.Errorf("state: redis read: %w", err)
	}
	snap.DeviceToken = vals[r.deviceKey]
	if raw, ok := vals[r.sessionKey]; ok {
		var entry sessionEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrStoreCorrupted, r.sessionKey, err)
		}
		snap.SessionID = entry.SessionID
		snap.AccessToken = entry.AccessToken
		snap.Consent = entry.Consent
	}
	return snap, nil
}
