// Package stats computes the aggregate statistics of an imported run.
package stats

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jfcarrano/brunnhilde/internal/store"
)

// NotAvailable is reported for a range computed over an empty set.
const NotAvailable = "N/A"

// Source is the read side of the store the aggregator queries.
type Source interface {
	Count(ctx context.Context, query string, args ...any) (int64, error)
	Strings(ctx context.Context, query string, args ...any) ([]string, error)
}

// Options controls which statistics are computed.
type Options struct {
	// Hashing enables the distinct-file and duplicate metrics.
	Hashing bool

	// SourceDir is walked to compute the total size. Empty skips the walk.
	SourceDir string
}

// Range is an inclusive pair of bounds. Both bounds are NotAvailable when the
// underlying set is empty.
type Range struct {
	Begin string
	End   string
}

// Available reports whether the range was computed from at least one value.
func (r Range) Available() bool {
	return r.Begin != NotAvailable
}

// Summary is the statistics bundle of one run.
type Summary struct {
	Files      int64
	EmptyFiles int64

	// Hash mode only.
	Hashing            bool
	DistinctFiles      int64
	DistinctDuplicates int64
	TotalDuplicates    int64
	DuplicateCopies    int64

	Unidentified int64
	Formats      int64
	Errors       int64
	Warnings     int64

	YearRange Range
	DateRange Range

	SizeBytes int64
	Size      string
}

// Identified returns the number of files with a format identification.
func (s *Summary) Identified() int64 {
	return s.Files - s.Unidentified
}

const (
	queryFiles        = "SELECT COUNT(*) FROM siegfried"
	queryEmpty        = "SELECT COUNT(*) FROM siegfried WHERE filesize = '0'"
	queryDistinct     = "SELECT COUNT(DISTINCT hash) FROM siegfried WHERE filesize <> '0' AND hash <> ''"
	queryUnidentified = "SELECT COUNT(*) FROM siegfried WHERE id = 'UNKNOWN'"
	queryFormats      = "SELECT COUNT(DISTINCT format) FROM siegfried WHERE format <> ''"
	queryErrors       = "SELECT COUNT(*) FROM siegfried WHERE errors <> ''"
	queryWarnings     = "SELECT COUNT(*) FROM siegfried WHERE warning <> ''"
	queryYears        = "SELECT DISTINCT SUBSTR(modified, 1, 4) FROM siegfried"
	queryDates        = "SELECT DISTINCT modified FROM siegfried WHERE modified <> ''"

	queryTotalDuplicates    = "SELECT COUNT(*)" + store.DuplicatesFilter
	queryDistinctDuplicates = "SELECT COUNT(DISTINCT t1.hash)" + store.DuplicatesFilter
)

type countQuery struct {
	dst   *int64
	query string
	name  string
}

// Compute runs the fixed set of aggregate queries against src.
func Compute(ctx context.Context, src Source, opts Options) (*Summary, error) {
	s := &Summary{Hashing: opts.Hashing}

	counts := []countQuery{
		{&s.Files, queryFiles, "files"},
		{&s.EmptyFiles, queryEmpty, "empty files"},
		{&s.Unidentified, queryUnidentified, "unidentified files"},
		{&s.Formats, queryFormats, "formats"},
		{&s.Errors, queryErrors, "errors"},
		{&s.Warnings, queryWarnings, "warnings"},
	}
	if opts.Hashing {
		counts = append(counts,
			countQuery{&s.DistinctFiles, queryDistinct, "distinct files"},
			countQuery{&s.TotalDuplicates, queryTotalDuplicates, "duplicates"},
			countQuery{&s.DistinctDuplicates, queryDistinctDuplicates, "distinct duplicates"},
		)
	}
	for _, c := range counts {
		n, err := src.Count(ctx, c.query)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.name, err)
		}
		*c.dst = n
	}
	s.DuplicateCopies = s.TotalDuplicates - s.DistinctDuplicates

	years, err := src.Strings(ctx, queryYears)
	if err != nil {
		return nil, fmt.Errorf("select years: %w", err)
	}
	s.YearRange = YearRange(years)

	dates, err := src.Strings(ctx, queryDates)
	if err != nil {
		return nil, fmt.Errorf("select dates: %w", err)
	}
	s.DateRange = DateRange(dates)

	if opts.SourceDir != "" {
		size, err := DirSize(opts.SourceDir)
		if err != nil {
			return nil, err
		}
		s.SizeBytes = size
	}
	s.Size = FormatSize(s.SizeBytes)

	return s, nil
}

// YearRange reduces year prefixes to their numeric minimum and maximum.
// Prefixes that are not integers are ignored.
func YearRange(years []string) Range {
	r := Range{Begin: NotAvailable, End: NotAvailable}
	var lo, hi int
	seen := false
	for _, y := range years {
		v, err := strconv.Atoi(y)
		if err != nil {
			continue
		}
		if !seen || v < lo {
			lo, r.Begin = v, y
		}
		if !seen || v > hi {
			hi, r.End = v, y
		}
		seen = true
	}
	return r
}

// DateRange returns the string minimum and maximum of the non-empty dates.
// Dates are compared as strings, not parsed.
func DateRange(dates []string) Range {
	r := Range{Begin: NotAvailable, End: NotAvailable}
	first := true
	for _, d := range dates {
		if d == "" {
			continue
		}
		if first {
			r.Begin, r.End = d, d
			first = false
			continue
		}
		if d < r.Begin {
			r.Begin = d
		}
		if d > r.End {
			r.End = d
		}
	}
	return r
}
