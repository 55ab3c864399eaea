package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaymesh/messaging-relay/internal/provider"
)

// RedisCache caches credentials in Redis with a bounded TTL. Values hold
// decrypted tokens, so the TTL stays short and keys are bot-scoped.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a cache backed by rdb.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type credentialValue struct {
	PhoneNumberID string `json:"phoneNumberId"`
	AccessToken   string `json:"accessToken"`
}

func credentialKey(botID string) string {
	return "bot-creds:" + botID
}

// Get implements CredentialCache. Misses and errors both report not-found;
// the caller falls back to storage.
func (c *RedisCache) Get(ctx context.Context, botID string) (*provider.Credentials, bool) {
	raw, err := c.rdb.Get(ctx, credentialKey(botID)).Bytes()
	if err != nil {
		return nil, false
	}

	var val credentialValue
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, false
	}

	return &provider.Credentials{
		PhoneNumberID: val.PhoneNumberID,
		AccessToken:   val.AccessToken,
	}, true
}

// Store implements CredentialCache.
func (c *RedisCache) Store(ctx context.Context, botID string, creds provider.Credentials) error {
	b, err := json.Marshal(credentialValue{
		PhoneNumberID: creds.PhoneNumberID,
		AccessToken:   creds.AccessToken,
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, credentialKey(botID), b, c.ttl).Err()
}
