package memory

import (
	"context"
	"fmt"
	"time"
)

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
	TokenEstimate int       `json:"tokenEstimate"`
	HistoryCount  int       `json:"historyCount"`
	KeyFactCount  int       `json:"keyFactCount"`
}

// ListSessions summarizes every persisted memory, most recently updated
// first. Corrupted records are skipped.
func (b *Box) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	records, err := b.store.ListConversationMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	sessions := make([]SessionSummary, 0, len(records))
	for _, record := range records {
		mem, err := decodeMemory(record)
		if err != nil {
			b.logger.Warn("ContextBox: skipping corrupted memory",
				"id", record.ID,
				"error", err)
			continue
		}
		sessions = append(sessions, SessionSummary{
			ID:            record.ID,
			Status:        mem.Status,
			Created:       mem.CreatedAt,
			Updated:       mem.UpdatedAt,
			TokenEstimate: mem.Metadata.TokenEstimate,
			HistoryCount:  len(mem.Pillars.History),
			KeyFactCount:  len(mem.Pillars.KeyFacts),
		})
	}
	return sessions, nil
}

// CleanupStale deletes every memory last updated before now-maxAge and
// returns the number deleted. maxAge <= 0 uses the configured horizon.
func (b *Box) CleanupStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = b.cfg.StaleAfter
	}
	cutoff := b.now().Add(-maxAge)

	listCtx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	records, err := b.store.ListConversationMemories(listCtx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list memories: %w", err)
	}

	cleaned := 0
	for _, record := range records {
		if !record.UpdatedAt.Before(cutoff) {
			continue
		}
		deleted, err := b.deleteIfStale(ctx, record.ID, cutoff)
		if err != nil {
			b.logger.Error("ContextBox: cleanup failed",
				"id", record.ID,
				"error", err)
			continue
		}
		if deleted {
			cleaned++
		}
	}

	if cleaned > 0 {
		b.logger.Info("ContextBox: cleaned stale sessions",
			"count", cleaned,
			"ttl", maxAge.String())
	}
	if b.observer != nil {
		b.observer.ObserveStaleCleanup(cleaned)
	}
	return cleaned, nil
}

// deleteIfStale re-reads the record under the id lock so a write that landed
// after listing keeps the memory alive.
func (b *Box) deleteIfStale(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	unlock := b.locks.Lock(key)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	record, err := b.store.GetConversationMemory(ctx, key)
	if err != nil {
		return false, err
	}
	if record == nil || !record.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	if err := b.store.DeleteConversationMemory(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}
