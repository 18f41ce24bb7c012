package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/store"
)

func (d *DB) GetTokenUsage(ctx context.Context, tenantID string) (*store.TokenUsage, error) {
	usage := &store.TokenUsage{TenantID: tenantID}
	var updatedTs int64
	err := d.db.QueryRowContext(ctx,
		`SELECT month, input_tokens, output_tokens, calls, updated_ts FROM token_usage WHERE tenant_id = ?`, tenantID,
	).Scan(&usage.Month, &usage.InputTokens, &usage.OutputTokens, &usage.Calls, &updatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get token usage for %s", tenantID)
	}
	usage.UpdatedAt = time.UnixMilli(updatedTs)
	return usage, nil
}

func (d *DB) UpsertTokenUsage(ctx context.Context, usage *store.TokenUsage) error {
	stmt := `
		INSERT INTO token_usage (tenant_id, month, input_tokens, output_tokens, calls, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			month = excluded.month,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			calls = excluded.calls,
			updated_ts = excluded.updated_ts
	`
	_, err := d.db.ExecContext(ctx, stmt,
		usage.TenantID, usage.Month, usage.InputTokens, usage.OutputTokens, usage.Calls, usage.UpdatedAt.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "failed to upsert token usage for %s", usage.TenantID)
	}
	return nil
}

func (d *DB) ListTokenUsage(ctx context.Context) ([]*store.TokenUsage, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT tenant_id, month, input_tokens, output_tokens, calls, updated_ts FROM token_usage ORDER BY tenant_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list token usage")
	}
	defer rows.Close()

	var list []*store.TokenUsage
	for rows.Next() {
		var (
			usage     store.TokenUsage
			updatedTs int64
		)
		if err := rows.Scan(&usage.TenantID, &usage.Month, &usage.InputTokens, &usage.OutputTokens, &usage.Calls, &updatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan token usage")
		}
		usage.UpdatedAt = time.UnixMilli(updatedTs)
		list = append(list, &usage)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate token usage")
	}
	return list, nil
}
