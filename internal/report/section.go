// Package report renders the CSV exports and the HTML document of a run.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"

	"github.com/jfcarrano/brunnhilde/internal/atomicfile"
	"github.com/jfcarrano/brunnhilde/internal/store"
)

// Kind selects how a section is rendered in HTML.
type Kind int

const (
	// KindTable renders one flat table of aggregate rows.
	KindTable Kind = iota
	// KindRecords renders the full records matching a filter.
	KindRecords
	// KindDuplicates renders one table per hash value.
	KindDuplicates
	// KindPII renders rows of the bulk_extractor PII log.
	KindPII
)

// Section titles double as HTML anchor names.
const (
	TitleFormats      = "File formats"
	TitleVersions     = "File formats and versions"
	TitleMIME         = "MIME types"
	TitleYears        = "Last modified dates by year"
	TitleUnidentified = "Unidentified"
	TitleWarnings     = "Warnings"
	TitleErrors       = "Errors"
	TitleDuplicates   = "Duplicates"
	TitlePII          = "Personally Identifiable Information (PII)"
)

// Section is one named report: what it selects, its header, and where it is
// written.
type Section struct {
	Title string

	// Query produces the rows of a KindTable section.
	Query string

	// Filter is the WHERE clause of a KindRecords section.
	Filter string

	Header  []string
	CSVName string
	Kind    Kind
	Note    string

	// InHTML is false for sections exported to CSV only.
	InHTML bool

	// Hashed selects the hashed record variant.
	Hashed bool
}

// Grouped reports whether the section renders one table per hash value.
func (s Section) Grouped() bool {
	return s.Kind == KindDuplicates
}

// Options selects the optional sections.
type Options struct {
	ShowWarnings bool
}

// Sections returns the fixed, ordered section list for a run.
func Sections(schema store.Schema, opts Options) []Section {
	full := schema.Header
	hashed := schema.HasHash()
	sections := []Section{
		{
			Title:   TitleFormats,
			Query:   "SELECT format, id, COUNT(*) AS num FROM siegfried GROUP BY format, id ORDER BY num DESC, format, id",
			Header:  []string{"Format", "ID", "Count"},
			CSVName: "formats.csv",
			InHTML:  true,
		},
		{
			Title:   TitleVersions,
			Query:   "SELECT format, id, version, COUNT(*) AS num FROM siegfried GROUP BY format, id, version ORDER BY num DESC, format, id, version",
			Header:  []string{"Format", "ID", "Version", "Count"},
			CSVName: "formatVersions.csv",
			InHTML:  true,
		},
		{
			Title:   TitleMIME,
			Query:   "SELECT mime, COUNT(*) AS num FROM siegfried GROUP BY mime ORDER BY num DESC, mime",
			Header:  []string{"MIME type", "Count"},
			CSVName: "mimetypes.csv",
			InHTML:  true,
		},
		{
			Title:   TitleYears,
			Query:   "SELECT SUBSTR(modified, 1, 4) AS year, COUNT(*) AS num FROM siegfried GROUP BY year ORDER BY num DESC, year",
			Header:  []string{"Year Last Modified", "Count"},
			CSVName: "years.csv",
			InHTML:  true,
		},
		{
			Title:   TitleUnidentified,
			Filter:  "id = '" + store.UnknownID + "'",
			Header:  full,
			CSVName: "unidentified.csv",
			Kind:    KindRecords,
			Hashed:  hashed,
			InHTML:  true,
		},
		{
			Title:   TitleWarnings,
			Filter:  "warning <> ''",
			Header:  full,
			CSVName: "warnings.csv",
			Kind:    KindRecords,
			Hashed:  hashed,
			InHTML:  opts.ShowWarnings,
		},
		{
			Title:   TitleErrors,
			Filter:  "errors <> ''",
			Header:  full,
			CSVName: "errors.csv",
			Kind:    KindRecords,
			Hashed:  hashed,
			InHTML:  true,
		},
	}
	if hashed {
		sections = append(sections, Section{
			Title:   TitleDuplicates,
			Header:  full,
			CSVName: "duplicates.csv",
			Kind:    KindDuplicates,
			Note:    "Duplicates are grouped by hash value.",
			InHTML:  true,
			Hashed:  true,
		})
	}
	return sections
}

// Querier is the read side of the store that sections select from.
type Querier interface {
	Rows(ctx context.Context, query string, args ...any) ([][]string, error)
	Records(ctx context.Context, filter string) ([]store.Record, error)
	HashedRecords(ctx context.Context, filter string) ([]store.HashedRecord, error)
	Duplicates(ctx context.Context) ([]store.HashedRecord, error)
}

// Result is an executed section.
type Result struct {
	Section Section
	Rows    [][]string

	// Duplicates holds the records of a duplicates section, ordered by hash.
	Duplicates []store.HashedRecord

	// Skipped replaces the table when the section's source was not produced.
	Skipped string
}

// Group is the set of rows sharing one hash value.
type Group struct {
	Hash string
	Rows [][]string
}

// Execute runs the section against q.
func (s Section) Execute(ctx context.Context, q Querier) (*Result, error) {
	res := &Result{Section: s, Rows: [][]string{}}
	var err error
	switch s.Kind {
	case KindRecords:
		err = s.selectRecords(ctx, q, res)
	case KindDuplicates:
		res.Duplicates, err = q.Duplicates(ctx)
		for _, r := range res.Duplicates {
			res.Rows = append(res.Rows, r.Values())
		}
	default:
		res.Rows, err = q.Rows(ctx, s.Query)
	}
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", s.Title, err)
	}
	return res, nil
}

func (s Section) selectRecords(ctx context.Context, q Querier, res *Result) error {
	if s.Hashed {
		recs, err := q.HashedRecords(ctx, s.Filter)
		for _, r := range recs {
			res.Rows = append(res.Rows, r.Values())
		}
		return err
	}
	recs, err := q.Records(ctx, s.Filter)
	for _, r := range recs {
		res.Rows = append(res.Rows, r.Values())
	}
	return err
}

// Empty reports whether the section produced no rows.
func (r *Result) Empty() bool {
	return len(r.Rows) == 0
}

// Groups splits the duplicate records by hash value, in first-seen order.
func (r *Result) Groups() []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, rec := range r.Duplicates {
		i, ok := pos[rec.Hash]
		if !ok {
			i = len(groups)
			pos[rec.Hash] = i
			groups = append(groups, Group{Hash: rec.Hash})
		}
		groups[i].Rows = append(groups[i].Rows, rec.Values())
	}
	return groups
}

// WriteCSV writes the header and rows to the section's file in dir and
// returns its path. The header is written even when there are no rows.
func (r *Result) WriteCSV(dir string) (string, error) {
	path := filepath.Join(dir, r.Section.CSVName)
	f, err := atomicfile.Create(path, 0644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", r.Section.CSVName, err)
	}
	defer f.Abort()

	w := csv.NewWriter(f)
	if err := w.Write(r.Section.Header); err != nil {
		return "", fmt.Errorf("write %s header: %w", r.Section.CSVName, err)
	}
	if err := w.WriteAll(r.Rows); err != nil {
		return "", fmt.Errorf("write %s: %w", r.Section.CSVName, err)
	}
	if err := f.Commit(); err != nil {
		return "", fmt.Errorf("commit %s: %w", r.Section.CSVName, err)
	}
	return path, nil
}

// Run executes every section and writes its CSV export to dir.
func Run(ctx context.Context, q Querier, sections []Section, dir string) ([]*Result, error) {
	results := make([]*Result, 0, len(sections))
	for _, s := range sections {
		res, err := s.Execute(ctx, q)
		if err != nil {
			return nil, err
		}
		if _, err := res.WriteCSV(dir); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
