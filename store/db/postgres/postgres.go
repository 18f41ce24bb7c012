package postgres

import (
	"context"
	"database/sql"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection pool for profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation_memory (
	id TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_conversation_memory_updated_at ON conversation_memory (updated_at);

CREATE TABLE IF NOT EXISTS token_usage (
	tenant_id TEXT PRIMARY KEY,
	month CHAR(7) NOT NULL,
	input_tokens BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	calls BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate postgres schema")
	}
	return nil
}

var _ store.Driver = (*DB)(nil)
