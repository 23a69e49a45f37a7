// Package archive persists simulation runs in SQLite so a batch can be
// re-aggregated later without re-simulating it.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pthm-cable/randwalk/geom"
	"github.com/pthm-cable/randwalk/obstacle"
	"github.com/pthm-cable/randwalk/sim"
	"github.com/pthm-cable/randwalk/telemetry"
)

// ErrUnknownBatch is returned for a batch id that is not in the archive.
var ErrUnknownBatch = errors.New("unknown batch")

// Batch describes one archived invocation of the runner.
type Batch struct {
	ID        string
	CreatedAt time.Time
	Seed      uint64
	Steps     int
	Config    string // YAML snapshot
	Runs      int    // filled by Batches
}

// Store is a SQLite-backed run archive.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the archive at path. ":memory:" gives a private
// in-memory archive.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// SQLite works best with a single writer; it also keeps an in-memory
	// database alive on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateBatch registers a batch. CreatedAt defaults to now.
func (s *Store) CreateBatch(ctx context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, created_at, seed, num_steps, config) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.CreatedAt.UTC().Format(time.RFC3339Nano), int64(b.Seed), b.Steps, b.Config)
	if err != nil {
		return fmt.Errorf("failed to insert batch %s: %w", b.ID, err)
	}
	return nil
}

// Batch returns one batch.
func (s *Store) Batch(ctx context.Context, id string) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT b.id, b.created_at, b.seed, b.num_steps, b.config,
		       (SELECT COUNT(*) FROM runs r WHERE r.batch_id = b.id)
		FROM batches b WHERE b.id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, fmt.Errorf("%w: %s", ErrUnknownBatch, id)
	}
	return b, err
}

// Batches lists every batch, newest first.
func (s *Store) Batches(ctx context.Context) ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.created_at, b.seed, b.num_steps, b.config,
		       (SELECT COUNT(*) FROM runs r WHERE r.batch_id = b.id)
		FROM batches b ORDER BY b.created_at DESC, b.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(sc scanner) (Batch, error) {
	var (
		b       Batch
		created string
		seed    int64
		config  sql.NullString
	)
	if err := sc.Scan(&b.ID, &created, &seed, &b.Steps, &config, &b.Runs); err != nil {
		return Batch{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to parse batch time %q: %w", created, err)
	}
	b.CreatedAt = t
	b.Seed = uint64(seed)
	b.Config = config.String
	return b, nil
}

// SaveRun stores every record of run under batchID in one transaction.
func (s *Store) SaveRun(ctx context.Context, batchID string, run sim.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obstacles, err := json.Marshal(run.Obstacles)
	if err != nil {
		return fmt.Errorf("failed to marshal obstacles: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (batch_id, run_index, obstacles) VALUES (?, ?, ?)`,
		batchID, run.Index, string(obstacles)); err != nil {
		return fmt.Errorf("failed to insert run %d: %w", run.Index, err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (batch_id, run_index, walker, position, kind, escape_step, truncated, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer recStmt.Close()

	stepStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO steps (batch_id, run_index, walker, step, x, y, z, crossings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stepStmt.Close()

	for pos, rec := range run.Records {
		if _, err := recStmt.ExecContext(ctx, batchID, run.Index, rec.Walker, pos, rec.Kind,
			rec.EscapeStep, boolInt(rec.Truncated), rec.Attempts); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Walker, err)
		}
		for i, p := range rec.Trajectory {
			crossings := 0
			if i < len(rec.Crossings) {
				crossings = rec.Crossings[i]
			}
			if _, err := stepStmt.ExecContext(ctx, batchID, run.Index, rec.Walker, i+1,
				p.X, p.Y, p.Z, crossings); err != nil {
				return fmt.Errorf("failed to insert step %d of %s: %w", i+1, rec.Walker, err)
			}
		}
	}

	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LoadRuns returns the runs of a batch in run order.
func (s *Store) LoadRuns(ctx context.Context, batchID string) ([]sim.Run, error) {
	batch, err := s.Batch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.loadRunHeaders(ctx, batchID, batch.Steps)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if err := s.loadRecords(ctx, batchID, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) loadRunHeaders(ctx context.Context, batchID string, steps int) ([]sim.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_index, obstacles FROM runs WHERE batch_id = ? ORDER BY run_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []sim.Run
	for rows.Next() {
		var (
			run       = sim.Run{Steps: steps}
			obstacles string
		)
		if err := rows.Scan(&run.Index, &obstacles); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var snap obstacle.Snapshot
		if err := json.Unmarshal([]byte(obstacles), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode obstacles of run %d: %w", run.Index, err)
		}
		run.Obstacles = snap
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) loadRecords(ctx context.Context, batchID string, run *sim.Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT walker, kind, escape_step, truncated, attempts
		FROM records WHERE batch_id = ? AND run_index = ? ORDER BY position`,
		batchID, run.Index)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	var records []sim.Record
	for rows.Next() {
		var rec sim.Record
		if err := rows.Scan(&rec.Walker, &rec.Kind, &rec.EscapeStep, &rec.Truncated, &rec.Attempts); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// One connection: finish reading records before querying steps.
	for i := range records {
		if err := s.loadSteps(ctx, batchID, run.Index, &records[i]); err != nil {
			return err
		}
	}
	run.Records = records
	return nil
}

func (s *Store) loadSteps(ctx context.Context, batchID string, runIndex int, rec *sim.Record) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT x, y, z, crossings FROM steps
		WHERE batch_id = ? AND run_index = ? AND walker = ? ORDER BY step`,
		batchID, runIndex, rec.Walker)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         geom.Vec
			crossings int
		)
		if err := rows.Scan(&p.X, &p.Y, &p.Z, &crossings); err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}
		rec.Trajectory = append(rec.Trajectory, p)
		rec.Crossings = append(rec.Crossings, crossings)
	}
	return rows.Err()
}

// Replay feeds every archived run of a batch into agg and returns the
// number of runs replayed.
func (s *Store) Replay(ctx context.Context, batchID string, agg *telemetry.Aggregator) (int, error) {
	runs, err := s.LoadRuns(ctx, batchID)
	if err != nil {
		return 0, err
	}
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		agg.AddRun(run)
	}
	return len(runs), nil
}
