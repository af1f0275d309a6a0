package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/transform"
)

var (
	// ErrFeedUnavailable is returned when the characterization feed cannot be opened.
	ErrFeedUnavailable = errors.New("characterization feed unavailable")

	// ErrHeaderWidth is returned when the feed header does not match the run's layout.
	ErrHeaderWidth = errors.New("feed header width does not match schema")
)

// ImportResult summarizes one ingestion pass.
type ImportResult struct {
	Columns  int
	Imported int64
	Skipped  int64
}

// nulStripper drops NUL bytes and passes every other byte through untouched.
// Filenames in the feed are not guaranteed to be valid UTF-8.
type nulStripper struct{ transform.NopResetter }

func (nulStripper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		chunk := src[nSrc:]
		i := bytes.IndexByte(chunk, 0)
		if i >= 0 {
			chunk = chunk[:i]
		}
		n := copy(dst[nDst:], chunk)
		nDst += n
		nSrc += n
		if n < len(chunk) {
			return nDst, nSrc, transform.ErrShortDst
		}
		if i >= 0 {
			nSrc++
		}
	}
	return nDst, nSrc, nil
}

// ImportFile opens the feed at path and imports it.
func (s *Store) ImportFile(ctx context.Context, path string, schema Schema) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer f.Close()
	return s.Import(ctx, f, schema)
}

// Import replaces the characterization table with the rows read from r.
//
// The first row is the header; its width must equal the schema width. Rows of
// any other width, and rows the CSV reader cannot parse, are dropped.
func (s *Store) Import(ctx context.Context, r io.Reader, schema Schema) (*ImportResult, error) {
	if err := s.reset(ctx, schema); err != nil {
		return nil, err
	}

	cr := csv.NewReader(transform.NewReader(r, nulStripper{}))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &ImportResult{Columns: schema.Width()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feed header: %w", err)
	}
	if len(header) != schema.Width() {
		return nil, fmt.Errorf("%w: header has %d columns, %s layout has %d",
			ErrHeaderWidth, len(header), schema.Name, schema.Width())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, schema.insertSQL())
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	res := &ImportResult{Columns: len(header)}
	args := make([]any, len(header))
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			res.Skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read feed: %w", err)
		}
		if len(row) != len(header) {
			res.Skipped++
			continue
		}
		for i, v := range row {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("insert row: %w", err)
		}
		res.Imported++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return res, nil
}

// reset drops any table left by a previous run and recreates it.
func (s *Store) reset(ctx context.Context, schema Schema) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+Table); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema.createSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}
