package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreUnavailable is returned when the database cannot be opened or created.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store represents the SQLite store of one run.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %v", ErrStoreUnavailable, err)
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStoreUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrStoreUnavailable, err)
	}

	// A single connection keeps the run strictly sequential.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Count runs a query returning a single integer.
func (s *Store) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Strings runs a query returning a single text column.
func (s *Store) Strings(ctx context.Context, query string, args ...any) ([]string, error) {
	var out []sql.NullString
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("select strings: %w", err)
	}
	values := make([]string, len(out))
	for i, v := range out {
		values[i] = v.String
	}
	return values, nil
}

// Rows runs an arbitrary query and returns every row as text, in column order.
func (s *Store) Rows(ctx context.Context, query string, args ...any) ([][]string, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	result := [][]string{}
	for rows.Next() {
		cols, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = text(c)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// Records returns the records of an unhashed run matching filter, in
// insertion order. An empty filter selects every record.
func (s *Store) Records(ctx context.Context, filter string) ([]Record, error) {
	out := []Record{}
	if err := s.db.SelectContext(ctx, &out, selectRecords(SchemaWithoutHash, filter)); err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	return out, nil
}

// HashedRecords returns the records of a hashed run matching filter, in
// insertion order. An empty filter selects every record.
func (s *Store) HashedRecords(ctx context.Context, filter string) ([]HashedRecord, error) {
	out := []HashedRecord{}
	if err := s.db.SelectContext(ctx, &out, selectRecords(SchemaWithHash, filter)); err != nil {
		return nil, fmt.Errorf("select hashed records: %w", err)
	}
	return out, nil
}

// DuplicatesFilter is the FROM/WHERE clause, over alias t1, that keeps every
// non-empty record sharing its hash with a differently named non-empty record.
// The Duplicates section and the duplicate counts both build on it.
const DuplicatesFilter = ` FROM siegfried t1
WHERE t1.filesize <> '0' AND t1.hash <> ''
  AND EXISTS (
    SELECT 1 FROM siegfried t2
    WHERE t2.hash = t1.hash AND t2.filename <> t1.filename AND t2.filesize <> '0'
  )`

// Duplicates returns the records participating in a duplicate group, ordered
// by hash and then insertion order.
func (s *Store) Duplicates(ctx context.Context) ([]HashedRecord, error) {
	out := []HashedRecord{}
	q := "SELECT " + columnList(SchemaWithHash) + DuplicatesFilter + " ORDER BY t1.hash, t1.rowid"
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("select duplicates: %w", err)
	}
	return out, nil
}

func selectRecords(schema Schema, filter string) string {
	q := "SELECT " + columnList(schema) + " FROM " + Table
	if filter != "" {
		q += " WHERE " + filter
	}
	return q + " ORDER BY rowid"
}

func columnList(s Schema) string {
	return strings.Join(s.Columns, ", ")
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
