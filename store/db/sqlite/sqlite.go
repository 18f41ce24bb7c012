package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/store"
)

// ============================================================================
// SQLITE SUPPORT POLICY
// ============================================================================
// SQLite is supported for development and single-node deployments.
// Multi-instance deployments should use PostgreSQL or Redis: SQLite allows a
// single writer and the dispatch core keeps its per-id locks in process.
// ============================================================================

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database named by profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// - No shared-cache: WAL journal mode is a better solution.
	// - busy_timeout so concurrent turns wait instead of failing with SQLITE_BUSY.
	// - With `modernc.org/sqlite`, each pragma must be prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	sqliteDB.SetMaxOpenConns(1) // SQLite: single connection is optimal with WAL
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation_memory (
	id TEXT NOT NULL PRIMARY KEY,
	data TEXT NOT NULL,
	updated_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_memory_updated_ts ON conversation_memory (updated_ts);

CREATE TABLE IF NOT EXISTS token_usage (
	tenant_id TEXT NOT NULL PRIMARY KEY,
	month TEXT NOT NULL,
	input_tokens BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	calls BIGINT NOT NULL DEFAULT 0,
	updated_ts BIGINT NOT NULL
);
`

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate sqlite schema")
	}
	return nil
}

var _ store.Driver = (*DB)(nil)
