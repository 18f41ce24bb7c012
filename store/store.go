package store

import (
	"context"

	"github.com/hrygo/dispatchcore/internal/profile"
)

// Driver is implemented by every storage backend.
type Driver interface {
	ConversationMemoryStore
	TokenUsageStore

	// Migrate creates the tables/buckets the driver needs. Idempotent.
	Migrate(ctx context.Context) error
	Close() error
}

// Store provides access to the durable collaborators of the dispatch core.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) GetConversationMemory(ctx context.Context, id string) (*ConversationMemoryRecord, error) {
	return s.driver.GetConversationMemory(ctx, id)
}

func (s *Store) UpsertConversationMemory(ctx context.Context, record *ConversationMemoryRecord) error {
	return s.driver.UpsertConversationMemory(ctx, record)
}

func (s *Store) DeleteConversationMemory(ctx context.Context, id string) error {
	return s.driver.DeleteConversationMemory(ctx, id)
}

func (s *Store) ListConversationMemories(ctx context.Context) ([]*ConversationMemoryRecord, error) {
	return s.driver.ListConversationMemories(ctx)
}

func (s *Store) GetTokenUsage(ctx context.Context, tenantID string) (*TokenUsage, error) {
	return s.driver.GetTokenUsage(ctx, tenantID)
}

func (s *Store) UpsertTokenUsage(ctx context.Context, usage *TokenUsage) error {
	return s.driver.UpsertTokenUsage(ctx, usage)
}

func (s *Store) ListTokenUsage(ctx context.Context) ([]*TokenUsage, error) {
	return s.driver.ListTokenUsage(ctx)
}

var (
	_ ConversationMemoryStore = (*Store)(nil)
	_ TokenUsageStore         = (*Store)(nil)
)
