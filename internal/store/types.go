// Package store provides the SQLite store holding one run's characterization feed.
package store

import "strings"

// Table is the name of the characterization table.
const Table = "siegfried"

// UnknownID is the identifier siegfried assigns to unidentified files.
const UnknownID = "UNKNOWN"

// FileSize is the filesize column kept in its exact textual form.
// Comparisons are exact string comparisons; the feed may carry values that do
// not parse as integers.
type FileSize string

// EmptyFileSize marks a zero-byte file.
const EmptyFileSize FileSize = "0"

// IsEmpty reports whether the size denotes an empty file.
func (s FileSize) IsEmpty() bool {
	return s == EmptyFileSize
}

// Record is one characterized file in a run without content hashing.
type Record struct {
	Filename  string   `db:"filename"`
	Filesize  FileSize `db:"filesize"`
	Modified  string   `db:"modified"`
	Errors    string   `db:"errors"`
	Namespace string   `db:"namespace"`
	ID        string   `db:"id"`
	Format    string   `db:"format"`
	Version   string   `db:"version"`
	MIME      string   `db:"mime"`
	Basis     string   `db:"basis"`
	Warning   string   `db:"warning"`
}

// Values returns the record in SchemaWithoutHash column order.
func (r Record) Values() []string {
	return []string{
		r.Filename, string(r.Filesize), r.Modified, r.Errors, r.Namespace,
		r.ID, r.Format, r.Version, r.MIME, r.Basis, r.Warning,
	}
}

// HashedRecord is one characterized file in a run with content hashing.
type HashedRecord struct {
	Record
	Hash string `db:"hash"`
}

// Values returns the record in SchemaWithHash column order.
func (r HashedRecord) Values() []string {
	return []string{
		r.Filename, string(r.Filesize), r.Modified, r.Errors, r.Hash, r.Namespace,
		r.ID, r.Format, r.Version, r.MIME, r.Basis, r.Warning,
	}
}

// Schema is one of the two fixed table layouts a run can use.
type Schema struct {
	// Name identifies the variant in logs.
	Name string

	// Columns are the table column names, in feed order.
	Columns []string

	// Header holds the human-readable column labels used in reports.
	Header []string

	// HashIndex is the position of the hash column, or -1.
	HashIndex int
}

// SchemaWithHash is the 12-column layout of a hashed run.
var SchemaWithHash = Schema{
	Name: "with-hash",
	Columns: []string{
		"filename", "filesize", "modified", "errors", "hash", "namespace",
		"id", "format", "version", "mime", "basis", "warning",
	},
	Header: []string{
		"Filename", "Filesize", "Date modified", "Errors", "Checksum", "Namespace",
		"ID", "Format", "Format version", "MIME type", "Basis for ID", "Warning",
	},
	HashIndex: 4,
}

// SchemaWithoutHash is the 11-column layout of an unhashed run.
var SchemaWithoutHash = Schema{
	Name: "without-hash",
	Columns: []string{
		"filename", "filesize", "modified", "errors", "namespace",
		"id", "format", "version", "mime", "basis", "warning",
	},
	Header: []string{
		"Filename", "Filesize", "Date modified", "Errors", "Namespace",
		"ID", "Format", "Format version", "MIME type", "Basis for ID", "Warning",
	},
	HashIndex: -1,
}

// SchemaFor selects the layout for a run.
func SchemaFor(hashing bool) Schema {
	if hashing {
		return SchemaWithHash
	}
	return SchemaWithoutHash
}

// HasHash reports whether the layout carries a hash column.
func (s Schema) HasHash() bool {
	return s.HashIndex >= 0
}

// Width returns the number of columns.
func (s Schema) Width() int {
	return len(s.Columns)
}

func (s Schema) createSQL() string {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c + " TEXT"
	}
	return "CREATE TABLE " + Table + " (" + strings.Join(cols, ", ") + ")"
}

func (s Schema) insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(s.Columns)), ", ")
	return "INSERT INTO " + Table + " (" + strings.Join(s.Columns, ", ") + ") VALUES (" + marks + ")"
}
