package store

import (
	"context"
	"time"
)

// ConversationMemoryRecord is the persisted form of one conversation memory.
// Data is the whole JSON document; it is replaced wholesale on every write.
type ConversationMemoryRecord struct {
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

// ConversationMemoryStore persists conversation memories keyed by sanitized id.
type ConversationMemoryStore interface {
	// GetConversationMemory returns nil, nil when the id is unknown.
	GetConversationMemory(ctx context.Context, id string) (*ConversationMemoryRecord, error)
	UpsertConversationMemory(ctx context.Context, record *ConversationMemoryRecord) error
	// DeleteConversationMemory is a no-op for unknown ids.
	DeleteConversationMemory(ctx context.Context, id string) error
	ListConversationMemories(ctx context.Context) ([]*ConversationMemoryRecord, error)
}
