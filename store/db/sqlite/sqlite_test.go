package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/store"
)

func newTestDB(t *testing.T) store.Driver {
	t.Helper()
	driver, err := NewDB(&profile.Profile{DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func TestNewDB_RequiresDSN(t *testing.T) {
	_, err := NewDB(&profile.Profile{})
	assert.Error(t, err)
}

func TestConversationMemory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	record, err := db.GetConversationMemory(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, record)

	now := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, db.UpsertConversationMemory(ctx, &store.ConversationMemoryRecord{
		ID: "session_1", Data: []byte(`{"status":"active"}`), UpdatedAt: now,
	}))
	require.NoError(t, db.UpsertConversationMemory(ctx, &store.ConversationMemoryRecord{
		ID: "session_1", Data: []byte(`{"status":"closed"}`), UpdatedAt: now.Add(time.Second),
	}))

	record, err = db.GetConversationMemory(ctx, "session_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.JSONEq(t, `{"status":"closed"}`, string(record.Data))
	assert.True(t, record.UpdatedAt.Equal(now.Add(time.Second)))

	list, err := db.ListConversationMemories(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, db.DeleteConversationMemory(ctx, "session_1"))
	require.NoError(t, db.DeleteConversationMemory(ctx, "session_1"))
	record, err = db.GetConversationMemory(ctx, "session_1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestTokenUsage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	usage, err := db.GetTokenUsage(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, usage)

	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{
		TenantID: "acme", Month: "2026-10", InputTokens: 100, OutputTokens: 50, Calls: 1, UpdatedAt: time.Now(),
	}))
	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{
		TenantID: "acme", Month: "2026-10", InputTokens: 300, OutputTokens: 150, Calls: 2, UpdatedAt: time.Now(),
	}))

	usage, err = db.GetTokenUsage(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, "2026-10", usage.Month)
	assert.Equal(t, int64(450), usage.TotalTokens())
	assert.Equal(t, int64(2), usage.Calls)

	list, err := db.ListTokenUsage(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
