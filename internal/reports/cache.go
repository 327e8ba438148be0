package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
)

const (
	cacheVersionPrefix = "reports:version:"
	bumpChannel        = "ledger.bump"
)

// Cache stores rendered reports in Redis under per-tenant versioned keys.
// Posting an entry bumps the tenant version so stale reports are never served.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the tenant's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, tenantID string) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	key := cacheVersionPrefix + tenantID
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX keeps a concurrent Bump from being overwritten.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	return ver, err
}

// BuildKey composes a report key with the tenant's current version.
func (c *Cache) BuildKey(ctx context.Context, tenantID string, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"reports", tenantID}, parts...), ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("reports: cache loader required")
	}
	if c.enabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.enabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the tenant's reports and announces the new version.
func (c *Cache) Bump(ctx context.Context, tenantID string) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionPrefix+tenantID).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, tenantID+":"+strconv.FormatInt(ver, 10)).Err()
}

// EntryPosted implements ledger.PostingObserver.
func (c *Cache) EntryPosted(ctx context.Context, entry ledger.JournalEntry) error {
	return c.Bump(ctx, entry.TenantID)
}

var _ ledger.PostingObserver = (*Cache)(nil)
