// Package ledger records extraction runs in SQL. The same statements run on
// PostgreSQL and SQLite; placeholders are rebound per driver.
//
// Runs are kept in the extraction_runs table:
//
//	CREATE TABLE extraction_runs (
//	    id            TEXT PRIMARY KEY,
//	    extractor     TEXT NOT NULL,
//	    n             INTEGER NOT NULL,
//	    m             INTEGER NOT NULL,
//	    input_bits    INTEGER NOT NULL,
//	    output_bits   INTEGER NOT NULL,
//	    output_sha256 TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    error         TEXT NOT NULL,
//	    latency_us    BIGINT NOT NULL,
//	    created_at    TIMESTAMP NOT NULL
//	);
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/pkg/database"
	"github.com/cryptomite-go/cryptomite/pkg/resilience"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("ledger: run not found")

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const schema = `CREATE TABLE IF NOT EXISTS extraction_runs (
	id            TEXT PRIMARY KEY,
	extractor     TEXT NOT NULL,
	n             INTEGER NOT NULL,
	m             INTEGER NOT NULL,
	input_bits    INTEGER NOT NULL,
	output_bits   INTEGER NOT NULL,
	output_sha256 TEXT NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT NOT NULL,
	latency_us    BIGINT NOT NULL,
	created_at    TIMESTAMP NOT NULL
)`

const columns = `id, extractor, n, m, input_bits, output_bits, output_sha256, status, error, latency_us, created_at`

// Run is one extraction as recorded in the ledger.
type Run struct {
	ID           string        `json:"id"`
	Extractor    string        `json:"extractor"`
	N            int           `json:"n"`
	M            int           `json:"m"`
	InputBits    int           `json:"input_bits"`
	OutputBits   int           `json:"output_bits"`
	OutputSHA256 string        `json:"output_sha256"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Latency      time.Duration `json:"latency"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Digest returns the hex SHA-256 of the packed output bits.
func Digest(out bits.Bits) string {
	sum := sha256.Sum256(out.Bytes())
	return hex.EncodeToString(sum[:])
}

// Summary aggregates runs of one extractor and status.
type Summary struct {
	Extractor  string `json:"extractor"`
	Status     string `json:"status"`
	Runs       int64  `json:"runs"`
	OutputBits int64  `json:"output_bits"`
}

// ListOptions filters List. Zero values match everything.
type ListOptions struct {
	Extractor string
	Status    string
	Limit     int
}

// Store reads and writes extraction runs. Writes go through the circuit
// breaker so a failing database is not hammered by every job.
type Store struct {
	db      *database.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewStore creates a Store. breaker may be nil.
func NewStore(db *database.Client, breaker *resilience.CircuitBreaker) *Store {
	return &Store{
		db:      db,
		breaker: breaker,
		logger:  slog.Default().With("component", "ledger"),
	}
}

// Migrate creates the extraction_runs table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating extraction_runs: %w", err)
	}
	if _, err := s.db.DB.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS extraction_runs_created_at ON extraction_runs (created_at)`); err != nil {
		return fmt.Errorf("creating extraction_runs index: %w", err)
	}
	return nil
}

const upsert = `INSERT INTO extraction_runs (` + columns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		extractor = excluded.extractor,
		n = excluded.n,
		m = excluded.m,
		input_bits = excluded.input_bits,
		output_bits = excluded.output_bits,
		output_sha256 = excluded.output_sha256,
		status = excluded.status,
		error = excluded.error,
		latency_us = excluded.latency_us,
		created_at = excluded.created_at`

// Record inserts run, replacing an earlier record with the same ID so a
// redelivered job leaves one row.
func (s *Store) Record(ctx context.Context, run Run) error {
	return s.RecordBatch(ctx, []Run{run})
}

// RecordBatch upserts runs in one transaction: either every run is stored
// or none is.
func (s *Store) RecordBatch(ctx context.Context, runs []Run) error {
	if len(runs) == 0 {
		return nil
	}
	runs = append([]Run(nil), runs...)
	now := time.Now()
	for i := range runs {
		if runs[i].ID == "" {
			return errors.New("ledger: run has no id")
		}
		if runs[i].CreatedAt.IsZero() {
			runs[i].CreatedAt = now
		}
	}
	query := s.db.Rebind(upsert)
	write := func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, query)
			if err != nil {
				return fmt.Errorf("preparing upsert: %w", err)
			}
			defer stmt.Close()
			for _, run := range runs {
				if _, err := stmt.ExecContext(ctx,
					run.ID, run.Extractor, run.N, run.M, run.InputBits, run.OutputBits,
					run.OutputSHA256, run.Status, run.Error, run.Latency.Microseconds(),
					run.CreatedAt.UTC(),
				); err != nil {
					return fmt.Errorf("run %s: %w", run.ID, err)
				}
			}
			return nil
		})
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(write)
	} else {
		err = write()
	}
	if err != nil {
		return fmt.Errorf("recording %d run(s): %w", len(runs), err)
	}
	for _, run := range runs {
		s.logger.Debug("run recorded", "id", run.ID, "extractor", run.Extractor, "status", run.Status)
	}
	return nil
}

// Get loads one run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.DB.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+columns+` FROM extraction_runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("querying run %s: %w", id, err)
	}
	return run, nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	var where []string
	var args []any
	if opts.Extractor != "" {
		where = append(where, "extractor = ?")
		args = append(args, opts.Extractor)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	query := `SELECT ` + columns + ` FROM extraction_runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Summarize counts runs and output bits per extractor and status.
func (s *Store) Summarize(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT extractor, status, COUNT(*), COALESCE(SUM(output_bits), 0)
		FROM extraction_runs GROUP BY extractor, status ORDER BY extractor, status`)
	if err != nil {
		return nil, fmt.Errorf("summarizing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.Extractor, &sm.Status, &sm.Runs, &sm.OutputBits); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Ping checks the database connection. A successful ping closes an open
// breaker so writes resume without waiting out its reset timeout.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return err
	}
	if s.breaker != nil && s.breaker.GetState() != resilience.StateClosed {
		s.breaker.Reset()
		s.logger.Info("ledger reachable again, write breaker closed")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var latencyUS int64
	err := sc.Scan(&run.ID, &run.Extractor, &run.N, &run.M, &run.InputBits, &run.OutputBits,
		&run.OutputSHA256, &run.Status, &run.Error, &latencyUS, &run.CreatedAt)
	if err != nil {
		return Run{}, err
	}
	run.Latency = time.Duration(latencyUS) * time.Microsecond
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}
