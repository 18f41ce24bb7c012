package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/store"
)

func (d *DB) GetConversationMemory(ctx context.Context, id string) (*store.ConversationMemoryRecord, error) {
	record := &store.ConversationMemoryRecord{ID: id}
	err := d.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM conversation_memory WHERE id = $1`, id,
	).Scan(&record.Data, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get conversation memory %s", id)
	}
	return record, nil
}

func (d *DB) UpsertConversationMemory(ctx context.Context, record *store.ConversationMemoryRecord) error {
	query := `
		INSERT INTO conversation_memory (id, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := d.db.ExecContext(ctx, query, record.ID, record.Data, record.UpdatedAt); err != nil {
		return errors.Wrapf(err, "failed to upsert conversation memory %s", record.ID)
	}
	return nil
}

func (d *DB) DeleteConversationMemory(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation_memory WHERE id = $1`, id); err != nil {
		return errors.Wrapf(err, "failed to delete conversation memory %s", id)
	}
	return nil
}

func (d *DB) ListConversationMemories(ctx context.Context) ([]*store.ConversationMemoryRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, data, updated_at FROM conversation_memory ORDER BY updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation memories")
	}
	defer rows.Close()

	var list []*store.ConversationMemoryRecord
	for rows.Next() {
		var record store.ConversationMemoryRecord
		if err := rows.Scan(&record.ID, &record.Data, &record.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation memory")
		}
		list = append(list, &record)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate conversation memories")
}
