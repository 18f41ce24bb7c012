package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/store"
)

func newTestDB(t *testing.T) (store.Driver, string) {
	t.Helper()
	dir := t.TempDir()
	driver, err := NewDB(&profile.Profile{Data: dir})
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))
	return driver, dir
}

func TestNewDB_RequiresDataDir(t *testing.T) {
	_, err := NewDB(&profile.Profile{})
	assert.Error(t, err)
}

func TestConversationMemory(t *testing.T) {
	ctx := context.Background()
	db, dir := newTestDB(t)

	record, err := db.GetConversationMemory(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, record)

	updated := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	require.NoError(t, db.UpsertConversationMemory(ctx, &store.ConversationMemoryRecord{
		ID: "session_1", Data: []byte(`{"status":"active"}`), UpdatedAt: updated,
	}))

	record, err = db.GetConversationMemory(ctx, "session_1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.JSONEq(t, `{"status":"active"}`, string(record.Data))
	assert.True(t, record.UpdatedAt.Equal(updated), "mod time should carry updatedAt")

	// Leftover temp files from an interrupted write are never listed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, memoryDir, ".session_2.json.123.tmp"), []byte("{"), 0o644))

	list, err := db.ListConversationMemories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "session_1", list[0].ID)

	require.NoError(t, db.DeleteConversationMemory(ctx, "session_1"))
	require.NoError(t, db.DeleteConversationMemory(ctx, "session_1"))
	list, err = db.ListConversationMemories(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTokenUsage(t *testing.T) {
	ctx := context.Background()
	db, dir := newTestDB(t)

	usage, err := db.GetTokenUsage(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, usage)

	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{
		TenantID: "acme", Month: "2026-10", InputTokens: 10, OutputTokens: 5, Calls: 1,
	}))
	usage, err = db.GetTokenUsage(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, int64(15), usage.TotalTokens())

	require.NoError(t, os.WriteFile(filepath.Join(dir, usageDir, "broken.json"), []byte("{"), 0o644))
	_, err = db.GetTokenUsage(ctx, "broken")
	assert.Error(t, err)
}

func TestWriteAtomic_ReplacesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "record.json")

	require.NoError(t, writeAtomic(path, []byte(`{"long":"aaaaaaaaaaaaaaaaaaaa"}`)))
	require.NoError(t, writeAtomic(path, []byte(`{}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not survive")
}
