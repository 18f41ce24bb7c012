// Package redis implements the storage driver on Redis.
//
// Conversation memories are hashes {data, updated_ms} expiring after the
// stale-session horizon, so Redis itself enforces the TTL sweep. Token usage
// records are plain JSON strings without expiry.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/store"
)

const (
	memoryKeyPrefix = "dispatchcore:memory:"
	usageKeyPrefix  = "dispatchcore:usage:"

	// Default TTL for memory keys (24 hours)
	defaultTTL = 24 * time.Hour

	scanBatch = 200
)

// DB implements store.Driver using Redis.
type DB struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDB connects to the Redis server named by the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     profile.RedisAddr,
		Password: profile.RedisPassword,
		DB:       profile.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", profile.RedisAddr)
	}

	return NewDBWithClient(client, time.Duration(profile.StaleSessionHours)*time.Hour), nil
}

// NewDBWithClient wraps an existing client. A non-positive ttl uses the default.
func NewDBWithClient(client *redis.Client, ttl time.Duration) *DB {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DB{client: client, ttl: ttl}
}

// Migrate is a no-op: Redis needs no schema.
func (d *DB) Migrate(context.Context) error {
	return nil
}

func (d *DB) Close() error {
	return d.client.Close()
}

func (d *DB) GetConversationMemory(ctx context.Context, id string) (*store.ConversationMemoryRecord, error) {
	fields, err := d.client.HGetAll(ctx, memoryKeyPrefix+id).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get conversation memory %s", id)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return recordFromHash(id, fields), nil
}

func (d *DB) UpsertConversationMemory(ctx context.Context, record *store.ConversationMemoryRecord) error {
	key := memoryKeyPrefix + record.ID
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"data", record.Data,
			"updated_ms", record.UpdatedAt.UnixMilli(),
		)
		pipe.Expire(ctx, key, d.ttl)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upsert conversation memory %s", record.ID)
	}
	return nil
}

func (d *DB) DeleteConversationMemory(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, memoryKeyPrefix+id).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete conversation memory %s", id)
	}
	return nil
}

func (d *DB) ListConversationMemories(ctx context.Context) ([]*store.ConversationMemoryRecord, error) {
	keys, err := d.scan(ctx, memoryKeyPrefix)
	if err != nil {
		return nil, err
	}

	var list []*store.ConversationMemoryRecord
	for _, key := range keys {
		fields, err := d.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", key)
		}
		if len(fields) == 0 {
			continue // expired between SCAN and HGETALL
		}
		list = append(list, recordFromHash(key[len(memoryKeyPrefix):], fields))
	}
	return list, nil
}

func (d *DB) GetTokenUsage(ctx context.Context, tenantID string) (*store.TokenUsage, error) {
	val, err := d.client.Get(ctx, usageKeyPrefix+tenantID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get token usage for %s", tenantID)
	}

	var usage store.TokenUsage
	if err := json.Unmarshal(val, &usage); err != nil {
		return nil, errors.Wrapf(err, "corrupted token usage for %s", tenantID)
	}
	return &usage, nil
}

func (d *DB) UpsertTokenUsage(ctx context.Context, usage *store.TokenUsage) error {
	val, err := json.Marshal(usage)
	if err != nil {
		return errors.Wrap(err, "failed to marshal token usage")
	}
	if err := d.client.Set(ctx, usageKeyPrefix+usage.TenantID, val, 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to upsert token usage for %s", usage.TenantID)
	}
	return nil
}

func (d *DB) ListTokenUsage(ctx context.Context) ([]*store.TokenUsage, error) {
	keys, err := d.scan(ctx, usageKeyPrefix)
	if err != nil {
		return nil, err
	}

	var list []*store.TokenUsage
	for _, key := range keys {
		usage, err := d.GetTokenUsage(ctx, key[len(usageKeyPrefix):])
		if err != nil {
			return nil, err
		}
		if usage != nil {
			list = append(list, usage)
		}
	}
	return list, nil
}

// scan returns every key with the given prefix without blocking the server.
func (d *DB) scan(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := d.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s*", prefix)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func recordFromHash(id string, fields map[string]string) *store.ConversationMemoryRecord {
	record := &store.ConversationMemoryRecord{ID: id, Data: []byte(fields["data"])}
	if ms, err := strconv.ParseInt(fields["updated_ms"], 10, 64); err == nil {
		record.UpdatedAt = time.UnixMilli(ms)
	}
	return record
}

var _ store.Driver = (*DB)(nil)
