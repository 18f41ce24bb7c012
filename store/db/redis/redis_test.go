package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/store"
)

// Integration tests run only against a disposable Redis database:
//
//	DISPATCHCORE_TEST_REDIS_ADDR=localhost:6379
func newTestDB(t *testing.T) *DB {
	t.Helper()
	addr := os.Getenv("DISPATCHCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DISPATCHCORE_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	db := NewDBWithClient(client, time.Minute)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecordFromHash(t *testing.T) {
	record := recordFromHash("s1", map[string]string{"data": `{"a":1}`, "updated_ms": "1700000000000"})
	assert.Equal(t, "s1", record.ID)
	assert.Equal(t, `{"a":1}`, string(record.Data))
	assert.Equal(t, int64(1700000000000), record.UpdatedAt.UnixMilli())

	record = recordFromHash("s2", map[string]string{"data": "{}"})
	assert.True(t, record.UpdatedAt.IsZero())
}

func TestConversationMemory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	record, err := db.GetConversationMemory(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, db.UpsertConversationMemory(ctx, &store.ConversationMemoryRecord{
		ID: "session_1", Data: []byte(`{"status":"active"}`), UpdatedAt: time.Now(),
	}))

	ttl, err := db.client.TTL(ctx, memoryKeyPrefix+"session_1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	list, err := db.ListConversationMemories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "session_1", list[0].ID)

	require.NoError(t, db.DeleteConversationMemory(ctx, "session_1"))
	record, err = db.GetConversationMemory(ctx, "session_1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestTokenUsage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{
		TenantID: "acme", Month: "2026-10", InputTokens: 10, OutputTokens: 5, Calls: 1,
	}))

	usage, err := db.GetTokenUsage(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, int64(15), usage.TotalTokens())

	list, err := db.ListTokenUsage(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
