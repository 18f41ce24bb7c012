// Package file implements the storage driver on the local filesystem.
//
// Each conversation memory and each tenant usage record is one JSON file.
// Writes go to a temp file in the same directory and are renamed over the
// target, so a crash mid-write never leaves a truncated record behind.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/store"
)

const (
	memoryDir = "context-box"
	usageDir  = "token-usage"
	ext       = ".json"
)

// DB implements store.Driver on a data directory.
type DB struct {
	root string
}

// NewDB creates a file driver rooted at profile.Data.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.Data == "" {
		return nil, errors.New("data directory required")
	}
	return &DB{root: profile.Data}, nil
}

// Migrate creates the record directories.
func (d *DB) Migrate(context.Context) error {
	for _, dir := range []string{memoryDir, usageDir} {
		if err := os.MkdirAll(filepath.Join(d.root, dir), 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return nil
}

func (d *DB) path(dir, key string) string {
	return filepath.Join(d.root, dir, key+ext)
}

func (d *DB) GetConversationMemory(_ context.Context, id string) (*store.ConversationMemoryRecord, error) {
	path := d.path(memoryDir, id)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	return &store.ConversationMemoryRecord{ID: id, Data: data, UpdatedAt: info.ModTime()}, nil
}

func (d *DB) UpsertConversationMemory(_ context.Context, record *store.ConversationMemoryRecord) error {
	path := d.path(memoryDir, record.ID)
	if err := writeAtomic(path, record.Data); err != nil {
		return err
	}
	if !record.UpdatedAt.IsZero() {
		// ModTime carries updatedAt for listing without parsing every record.
		_ = os.Chtimes(path, record.UpdatedAt, record.UpdatedAt)
	}
	return nil
}

func (d *DB) DeleteConversationMemory(_ context.Context, id string) error {
	err := os.Remove(d.path(memoryDir, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to delete conversation memory %s", id)
	}
	return nil
}

func (d *DB) ListConversationMemories(ctx context.Context) ([]*store.ConversationMemoryRecord, error) {
	ids, err := d.list(memoryDir)
	if err != nil {
		return nil, err
	}

	var list []*store.ConversationMemoryRecord
	for _, id := range ids {
		record, err := d.GetConversationMemory(ctx, id)
		if err != nil {
			return nil, err
		}
		if record != nil {
			list = append(list, record)
		}
	}
	return list, nil
}

func (d *DB) GetTokenUsage(_ context.Context, tenantID string) (*store.TokenUsage, error) {
	path := d.path(usageDir, tenantID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var usage store.TokenUsage
	if err := json.Unmarshal(data, &usage); err != nil {
		return nil, errors.Wrapf(err, "corrupted token usage %s", path)
	}
	return &usage, nil
}

func (d *DB) UpsertTokenUsage(_ context.Context, usage *store.TokenUsage) error {
	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal token usage")
	}
	return writeAtomic(d.path(usageDir, usage.TenantID), data)
}

func (d *DB) ListTokenUsage(ctx context.Context) ([]*store.TokenUsage, error) {
	tenants, err := d.list(usageDir)
	if err != nil {
		return nil, err
	}

	var list []*store.TokenUsage
	for _, tenant := range tenants {
		usage, err := d.GetTokenUsage(ctx, tenant)
		if err != nil {
			return nil, err
		}
		if usage != nil {
			list = append(list, usage)
		}
	}
	return list, nil
}

// list returns the record keys stored in dir, skipping temp files.
func (d *DB) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) || strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ext))
	}
	return keys, nil
}

// writeAtomic replaces path with data via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}
	return nil
}

var _ store.Driver = (*DB)(nil)
