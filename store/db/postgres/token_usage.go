package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/store"
)

func (d *DB) GetTokenUsage(ctx context.Context, tenantID string) (*store.TokenUsage, error) {
	usage := &store.TokenUsage{TenantID: tenantID}
	err := d.db.QueryRowContext(ctx, `
		SELECT month, input_tokens, output_tokens, calls, updated_at
		FROM token_usage WHERE tenant_id = $1`, tenantID,
	).Scan(&usage.Month, &usage.InputTokens, &usage.OutputTokens, &usage.Calls, &usage.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get token usage for %s", tenantID)
	}
	return usage, nil
}

func (d *DB) UpsertTokenUsage(ctx context.Context, usage *store.TokenUsage) error {
	query := `
		INSERT INTO token_usage (tenant_id, month, input_tokens, output_tokens, calls, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			month = EXCLUDED.month,
			input_tokens = EXCLUDED.input_tokens,
			output_tokens = EXCLUDED.output_tokens,
			calls = EXCLUDED.calls,
			updated_at = EXCLUDED.updated_at
	`
	_, err := d.db.ExecContext(ctx, query,
		usage.TenantID, usage.Month, usage.InputTokens, usage.OutputTokens, usage.Calls, usage.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert token usage for %s", usage.TenantID)
	}
	return nil
}

func (d *DB) ListTokenUsage(ctx context.Context) ([]*store.TokenUsage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT tenant_id, month, input_tokens, output_tokens, calls, updated_at
		FROM token_usage ORDER BY tenant_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list token usage")
	}
	defer rows.Close()

	var list []*store.TokenUsage
	for rows.Next() {
		var usage store.TokenUsage
		if err := rows.Scan(&usage.TenantID, &usage.Month, &usage.InputTokens, &usage.OutputTokens, &usage.Calls, &usage.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan token usage")
		}
		list = append(list, &usage)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate token usage")
}
