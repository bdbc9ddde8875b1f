// Package outlets implements the natural-language-to-SQL retrieval pipeline
// over the outlet database.
package outlets

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite outlet database. Rows are written once at seed time
// and read-only afterwards.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the outlet database in dataDir and ensures the
// outlets table exists. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "zus_outlets.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS outlets (
		id INTEGER PRIMARY KEY,
		name TEXT,
		address TEXT,
		link TEXT,
		reviews_count INTEGER,
		reviews_average REAL,
		phone_number TEXT,
		services TEXT,
		place_type TEXT,
		opens_at TEXT
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating outlets table: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle so the product vector index can share the
// same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of outlet rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outlets").Scan(&count)
	return count, err
}

// Columns returns the outlet table's column names in declaration order.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info('outlets') ORDER BY cid")
	if err != nil {
		return nil, fmt.Errorf("introspecting outlets table: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// ExecuteSelect runs a validated SELECT statement and returns the rows as
// key/value records in column order.
func (s *Store) ExecuteSelect(ctx context.Context, stmt string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}

		record := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// SQLite hands TEXT back as []byte through database/sql.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[col] = v
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// SeedFromCSV loads outlet rows from a CSV file when the table is empty.
// Safe to call on every startup; a populated table is left untouched.
// Expected columns (by header name): name, address, link, reviews_count,
// reviews_average, phone_number, services, place_type, opens_at.
func (s *Store) SeedFromCSV(ctx context.Context, csvPath string) error {
	count, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("checking outlet count: %w", err)
	}
	if count > 0 {
		slog.Info("outlet database already populated", "count", count)
		return nil
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("opening outlets CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outlets
		(id, name, address, link, reviews_count, reviews_average, phone_number, services, place_type, opens_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing seed statement: %w", err)
	}
	defer stmt.Close()

	id := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("reading CSV row: %w", err)
		}

		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		id++
		reviewsCount, _ := strconv.Atoi(get("reviews_count"))
		reviewsAvg, _ := strconv.ParseFloat(get("reviews_average"), 64)

		if _, err := stmt.ExecContext(ctx, id,
			get("name"), get("address"), get("link"),
			reviewsCount, reviewsAvg,
			get("phone_number"), get("services"), get("place_type"), get("opens_at"),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting outlet row %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}
	slog.Info("outlet database seeded", "count", id)
	return nil
}
