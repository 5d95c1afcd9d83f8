package counter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore counts hits in a table (path TEXT PRIMARY KEY, hits BIGINT).
// Increment is a single INSERT ... ON CONFLICT DO UPDATE, which Postgres
// applies atomically per row.
type PostgresStore struct {
	db      *sql.DB
	table   string
	timeout time.Duration

	incrementSQL string
	getSQL       string
	listSQL      string
}

// OpenPostgres opens a pooled connection using the lib/pq driver.
func OpenPostgres(dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	return db, nil
}

// NewPostgresStore creates a Postgres-backed store on table.
func NewPostgresStore(db *sql.DB, table string, timeout time.Duration) *PostgresStore {
	t := pq.QuoteIdentifier(table)
	return &PostgresStore{
		db:      db,
		table:   table,
		timeout: timeout,
		incrementSQL: `INSERT INTO ` + t + ` (path, hits) VALUES ($1, 1) ` +
			`ON CONFLICT (path) DO UPDATE SET hits = ` + t + `.hits + 1 RETURNING hits`,
		getSQL:  `SELECT hits FROM ` + t + ` WHERE path = $1`,
		listSQL: `SELECT path, hits FROM ` + t + ` ORDER BY hits DESC, path`,
	}
}

func (s *PostgresStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return parent, func() {}
}

func (s *PostgresStore) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var hits int64
	if err := s.db.QueryRowContext(ctx, s.incrementSQL, key).Scan(&hits); err != nil {
		return 0, fmt.Errorf("postgres: increment %s %q: %w", s.table, key, err)
	}
	return hits, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var hits int64
	err := s.db.QueryRowContext(ctx, s.getSQL, key).Scan(&hits)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get %s %q: %w", s.table, key, err)
	}
	return hits, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	query := s.listSQL
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Path, &r.Hits); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", s.table, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", s.table, err)
	}
	return records, nil
}

// EnsureSchema creates the hits table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + pq.QuoteIdentifier(s.table) + ` (` +
		`path TEXT PRIMARY KEY, ` +
		`hits BIGINT NOT NULL DEFAULT 0 CHECK (hits >= 0))`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
