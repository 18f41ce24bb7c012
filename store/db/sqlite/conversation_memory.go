package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/store"
)

func (d *DB) GetConversationMemory(ctx context.Context, id string) (*store.ConversationMemoryRecord, error) {
	var (
		data      string
		updatedTs int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT data, updated_ts FROM conversation_memory WHERE id = ?`, id,
	).Scan(&data, &updatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get conversation memory %s", id)
	}

	return &store.ConversationMemoryRecord{
		ID:        id,
		Data:      []byte(data),
		UpdatedAt: time.UnixMilli(updatedTs),
	}, nil
}

func (d *DB) UpsertConversationMemory(ctx context.Context, record *store.ConversationMemoryRecord) error {
	stmt := `
		INSERT INTO conversation_memory (id, data, updated_ts) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_ts = excluded.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt, record.ID, string(record.Data), record.UpdatedAt.UnixMilli()); err != nil {
		return errors.Wrapf(err, "failed to upsert conversation memory %s", record.ID)
	}
	return nil
}

func (d *DB) DeleteConversationMemory(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM conversation_memory WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete conversation memory %s", id)
	}
	return nil
}

func (d *DB) ListConversationMemories(ctx context.Context) ([]*store.ConversationMemoryRecord, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, data, updated_ts FROM conversation_memory ORDER BY updated_ts DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation memories")
	}
	defer rows.Close()

	var list []*store.ConversationMemoryRecord
	for rows.Next() {
		var (
			record    store.ConversationMemoryRecord
			data      string
			updatedTs int64
		)
		if err := rows.Scan(&record.ID, &data, &updatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation memory")
		}
		record.Data = []byte(data)
		record.UpdatedAt = time.UnixMilli(updatedTs)
		list = append(list, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversation memories")
	}
	return list, nil
}
