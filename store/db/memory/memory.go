// Package memory implements an in-process storage driver.
// Records do not survive a restart; use it for tests and demo mode.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hrygo/dispatchcore/store"
)

// DB implements store.Driver with maps guarded by a mutex.
// Records are copied on the way in and out.
type DB struct {
	mu       sync.RWMutex
	memories map[string]store.ConversationMemoryRecord
	usage    map[string]store.TokenUsage
}

// NewDB creates an empty in-memory driver.
func NewDB() *DB {
	return &DB{
		memories: make(map[string]store.ConversationMemoryRecord),
		usage:    make(map[string]store.TokenUsage),
	}
}

func (d *DB) Migrate(context.Context) error { return nil }

func (d *DB) Close() error { return nil }

func (d *DB) GetConversationMemory(_ context.Context, id string) (*store.ConversationMemoryRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	record, ok := d.memories[id]
	if !ok {
		return nil, nil
	}
	return copyRecord(record), nil
}

func (d *DB) UpsertConversationMemory(_ context.Context, record *store.ConversationMemoryRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memories[record.ID] = *copyRecord(*record)
	return nil
}

func (d *DB) DeleteConversationMemory(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.memories, id)
	return nil
}

func (d *DB) ListConversationMemories(context.Context) ([]*store.ConversationMemoryRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.ConversationMemoryRecord, 0, len(d.memories))
	for _, record := range d.memories {
		list = append(list, copyRecord(record))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (d *DB) GetTokenUsage(_ context.Context, tenantID string) (*store.TokenUsage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	usage, ok := d.usage[tenantID]
	if !ok {
		return nil, nil
	}
	return &usage, nil
}

func (d *DB) UpsertTokenUsage(_ context.Context, usage *store.TokenUsage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.usage[usage.TenantID] = *usage
	return nil
}

func (d *DB) ListTokenUsage(context.Context) ([]*store.TokenUsage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*store.TokenUsage, 0, len(d.usage))
	for _, usage := range d.usage {
		u := usage
		list = append(list, &u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TenantID < list[j].TenantID })
	return list, nil
}

func copyRecord(record store.ConversationMemoryRecord) *store.ConversationMemoryRecord {
	record.Data = append([]byte(nil), record.Data...)
	return &record
}

var _ store.Driver = (*DB)(nil)
