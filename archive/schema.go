package archive

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

-- One row per invocation of the runner
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    seed INTEGER NOT NULL,     -- uint64 stored bit-for-bit
    num_steps INTEGER NOT NULL,
    config TEXT                -- YAML snapshot, may be empty
);

CREATE TABLE IF NOT EXISTS runs (
    batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    run_index INTEGER NOT NULL,
    obstacles TEXT NOT NULL,   -- JSON obstacle snapshot
    PRIMARY KEY (batch_id, run_index)
);

CREATE TABLE IF NOT EXISTS records (
    batch_id TEXT NOT NULL,
    run_index INTEGER NOT NULL,
    walker TEXT NOT NULL,
    position INTEGER NOT NULL, -- walker insertion order
    kind TEXT NOT NULL,
    escape_step INTEGER NOT NULL,
    truncated INTEGER NOT NULL,
    attempts INTEGER NOT NULL,
    PRIMARY KEY (batch_id, run_index, walker),
    FOREIGN KEY (batch_id, run_index) REFERENCES runs(batch_id, run_index) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS steps (
    batch_id TEXT NOT NULL,
    run_index INTEGER NOT NULL,
    walker TEXT NOT NULL,
    step INTEGER NOT NULL,     -- 1-based
    x REAL NOT NULL,
    y REAL NOT NULL,
    z REAL NOT NULL,
    crossings INTEGER NOT NULL,
    PRIMARY KEY (batch_id, run_index, walker, step),
    FOREIGN KEY (batch_id, run_index, walker) REFERENCES records(batch_id, run_index, walker) ON DELETE CASCADE
);
`

// InitSchema creates the tables if they do not exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		return createSchema(ctx, db)
	}
	if version > SchemaVersion {
		return fmt.Errorf("archive schema version %d is newer than supported %d", version, SchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}
