// Package history keeps a coverage sample for every decoded map snapshot.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS coverage_samples (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    dsn           TEXT NOT NULL,
    recorded_at   INTEGER NOT NULL,
    cleaned_cells INTEGER NOT NULL,
    total_cells   INTEGER NOT NULL,
    area_sqm      REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_coverage_dsn_time ON coverage_samples(dsn, recorded_at DESC);
`

// Sample is one coverage reading.
type Sample struct {
	ID           int64     `json:"id"`
	DSN          string    `json:"dsn"`
	RecordedAt   time.Time `json:"recorded_at"`
	CleanedCells int       `json:"cleaned_cells"`
	TotalCells   int       `json:"total_cells"`
	AreaSqm      float64   `json:"area_sqm"`
}

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the history database and applies the schema.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir history dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{sqlDB}, nil
}

// Record stores a sample. A zero RecordedAt is replaced by the current time.
func (db *DB) Record(ctx context.Context, s Sample) (int64, error) {
	if s.DSN == "" {
		return 0, fmt.Errorf("dsn is required")
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO coverage_samples (dsn, recorded_at, cleaned_cells, total_cells, area_sqm) VALUES (?, ?, ?, ?, ?)`,
		s.DSN, s.RecordedAt.UnixMilli(), s.CleanedCells, s.TotalCells, s.AreaSqm)
	if err != nil {
		return 0, fmt.Errorf("insert sample: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit samples for dsn, newest first.
func (db *DB) Recent(ctx context.Context, dsn string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, dsn, recorded_at, cleaned_cells, total_cells, area_sqm
		FROM coverage_samples
		WHERE dsn = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, dsn, limit)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var ms int64
		if err := rows.Scan(&s.ID, &s.DSN, &ms, &s.CleanedCells, &s.TotalCells, &s.AreaSqm); err != nil {
			return nil, err
		}
		s.RecordedAt = time.UnixMilli(ms).UTC()
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Prune deletes samples older than cutoff.
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM coverage_samples WHERE recorded_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
