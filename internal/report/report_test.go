package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfcarrano/brunnhilde/internal/stats"
	"github.com/jfcarrano/brunnhilde/internal/store"
)

const hashedFeed = "filename,filesize,modified,errors,md5,namespace,id,format,version,mime,basis,warning\n" +
	"A,10,2019-03-01,,H1,pronom,fmt/40,Word,97,application/msword,ext,\n" +
	"B,10,2021-07-09,,H1,pronom,fmt/40,Word,97,application/msword,ext,\n" +
	"C,0,2020-01-01,,H1,pronom,UNKNOWN,,,,,empty file\n" +
	"D,5,2019-12-31,bad read,H2,pronom,fmt/18,PDF,1.4,application/pdf,sig,\n" +
	"E,7,2019-01-01,,H3,pronom,fmt/18,PDF,1.4,application/pdf,sig,\n" +
	"F,7,2018-01-01,,H3,pronom,fmt/18,PDF,1.4,application/pdf,sig,\n"

func loadStore(t *testing.T, schema store.Schema, feed string) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "siegfried.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.Import(context.Background(), strings.NewReader(feed), schema)
	require.NoError(t, err)
	return s
}

func sectionByTitle(t *testing.T, results []*Result, title string) *Result {
	t.Helper()
	for _, r := range results {
		if r.Section.Title == title {
			return r
		}
	}
	t.Fatalf("section %q not found", title)
	return nil
}

func TestSectionsSelection(t *testing.T) {
	hashed := Sections(store.SchemaWithHash, Options{})
	require.Len(t, hashed, 8)
	assert.Equal(t, TitleDuplicates, hashed[7].Title)
	assert.True(t, hashed[7].Grouped())
	assert.False(t, hashed[5].InHTML, "warnings are CSV-only without show-warnings")

	plain := Sections(store.SchemaWithoutHash, Options{ShowWarnings: true})
	require.Len(t, plain, 7)
	assert.True(t, plain[5].InHTML)
	for _, s := range plain {
		assert.NotEqual(t, TitleDuplicates, s.Title)
	}
}

func TestRunWritesEveryCSV(t *testing.T) {
	s := loadStore(t, store.SchemaWithHash, hashedFeed)
	dir := t.TempDir()

	results, err := Run(context.Background(), s, Sections(store.SchemaWithHash, Options{}), dir)
	require.NoError(t, err)
	require.Len(t, results, 8)

	for _, name := range []string{
		"formats.csv", "formatVersions.csv", "mimetypes.csv", "years.csv",
		"unidentified.csv", "warnings.csv", "errors.csv", "duplicates.csv",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	formats := sectionByTitle(t, results, TitleFormats)
	assert.Equal(t, []string{"PDF", "fmt/18", "3"}, formats.Rows[0])
	assert.Equal(t, []string{"Word", "fmt/40", "2"}, formats.Rows[1])

	years := sectionByTitle(t, results, TitleYears)
	assert.Equal(t, []string{"2019", "3"}, years.Rows[0])

	dups := sectionByTitle(t, results, TitleDuplicates)
	require.Len(t, dups.Rows, 4)
	require.Len(t, dups.Duplicates, 4)
	assert.Equal(t, "A", dups.Duplicates[0].Filename)
	assert.Equal(t, dups.Duplicates[0].Values(), dups.Rows[0])
	groups := dups.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "H1", groups[0].Hash)
	assert.Len(t, groups[0].Rows, 2)
	assert.Equal(t, "H3", groups[1].Hash)
}

func TestWriteCSVHeaderOnEmptyResult(t *testing.T) {
	dir := t.TempDir()
	res := &Result{Section: Section{CSVName: "errors.csv", Header: store.SchemaWithHash.Header}}

	path, err := res.WriteCSV(dir)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Checksum", records[0][4])
}

func dupRecord(name, hash string) store.HashedRecord {
	return store.HashedRecord{Record: store.Record{Filename: name, Filesize: "1"}, Hash: hash}
}

func TestGroupsFirstSeenOrder(t *testing.T) {
	res := &Result{
		Section:    Section{Kind: KindDuplicates},
		Duplicates: []store.HashedRecord{dupRecord("a", "zz"), dupRecord("b", "aa"), dupRecord("c", "zz"), dupRecord("d", "aa")},
	}
	groups := res.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "zz", groups[0].Hash)
	require.Len(t, groups[0].Rows, 2)
	assert.Equal(t, "a", groups[0].Rows[0][0])
	assert.Equal(t, "c", groups[0].Rows[1][0])
	assert.Equal(t, "zz", groups[0].Rows[1][store.SchemaWithHash.HashIndex])
	assert.Equal(t, "aa", groups[1].Hash)
}

func TestRecordSections(t *testing.T) {
	t.Run("hashed", func(t *testing.T) {
		s := loadStore(t, store.SchemaWithHash, hashedFeed)
		results, err := Run(context.Background(), s, Sections(store.SchemaWithHash, Options{}), t.TempDir())
		require.NoError(t, err)

		unidentified := sectionByTitle(t, results, TitleUnidentified)
		require.Len(t, unidentified.Rows, 1)
		assert.Equal(t, []string{"C", "0", "2020-01-01", "", "H1", "pronom", "UNKNOWN", "", "", "", "", "empty file"}, unidentified.Rows[0])

		errs := sectionByTitle(t, results, TitleErrors)
		require.Len(t, errs.Rows, 1)
		assert.Equal(t, "D", errs.Rows[0][0])
		assert.Equal(t, "bad read", errs.Rows[0][3])
	})

	t.Run("unhashed", func(t *testing.T) {
		feed := "filename,filesize,modified,errors,namespace,id,format,version,mime,basis,warning\n" +
			"a.txt,3,2019-05-01,,pronom,x-fmt/111,Plain Text File,,text/plain,text match,\n" +
			"b.bin,9,2019-05-01,,pronom,UNKNOWN,,,,,no match\n"
		s := loadStore(t, store.SchemaWithoutHash, feed)
		results, err := Run(context.Background(), s, Sections(store.SchemaWithoutHash, Options{}), t.TempDir())
		require.NoError(t, err)
		require.Len(t, results, 7)

		unidentified := sectionByTitle(t, results, TitleUnidentified)
		assert.Equal(t, [][]string{{"b.bin", "9", "2019-05-01", "", "pronom", "UNKNOWN", "", "", "", "", "no match"}}, unidentified.Rows)

		errs := sectionByTitle(t, results, TitleErrors)
		assert.True(t, errs.Empty())
	})
}

func TestLoadAntivirus(t *testing.T) {
	av, err := LoadAntivirus("", false)
	require.NoError(t, err)
	assert.True(t, av.Skipped())
	assert.Equal(t, SkippedAntivirus, av.Note)

	missing := filepath.Join(t.TempDir(), "viruscheck-log.txt")
	av, err = LoadAntivirus(missing, true)
	require.NoError(t, err)
	assert.True(t, av.Skipped())
	assert.Contains(t, av.Note, missing)

	log := "----------- SCAN SUMMARY -----------\nKnown viruses: 8000000\nScanned files: 6\nInfected files: 2\n"
	require.NoError(t, os.WriteFile(missing, []byte(log), 0600))
	av, err = LoadAntivirus(missing, true)
	require.NoError(t, err)
	assert.False(t, av.Skipped())
	assert.Equal(t, 2, av.Infected)
	assert.Equal(t, log, av.Log)
}

func TestLoadPII(t *testing.T) {
	res, err := LoadPII("", false)
	require.NoError(t, err)
	assert.Nil(t, res)

	path := filepath.Join(t.TempDir(), "pii.txt")
	res, err = LoadPII(path, true)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Skipped)

	log := "# BANNER FILE NOT PROVIDED (-b option)\n" +
		"# BULK_EXTRACTOR-Version: 1.6.0\n" +
		"# Feature-Recorder: pii\n" +
		"# Filename: /data\n" +
		"# Feature-File-Version: 1.1\n" +
		"/data/a.txt-0\t123-45-6789\tSSN: 123-45-6789\n" +
		"\n" +
		"/data/b.txt-10\t987-65-4321\tssn 987-65-4321\n"
	require.NoError(t, os.WriteFile(path, []byte(log), 0600))

	res, err = LoadPII(path, true)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"/data/a.txt-0", "123-45-6789", "SSN: 123-45-6789"}, res.Rows[0])
	assert.Equal(t, []string{"File", "Value Found", "Context"}, res.Section.Header)
}

func renderDoc(t *testing.T, doc *Document) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))
	return buf.String()
}

func TestRenderDocument(t *testing.T) {
	s := loadStore(t, store.SchemaWithHash, hashedFeed)
	results, err := Run(context.Background(), s, Sections(store.SchemaWithHash, Options{}), t.TempDir())
	require.NoError(t, err)
	sum, err := stats.Compute(context.Background(), s, stats.Options{Hashing: true})
	require.NoError(t, err)
	av, err := LoadAntivirus("", false)
	require.NoError(t, err)

	out := renderDoc(t, &Document{
		Provenance: Provenance{
			RunID:                "run-1",
			Source:               "/data/src",
			Basename:             "acc-001",
			ToolVersion:          "brunnhilde 1.6.0",
			CharacterizerVersion: "siegfried 1.9.1",
			CharacterizerCommand: `sf -csv -hash md5 "/data/src"`,
			ScanStarted:          "2024-05-06 07:08:09",
		},
		Summary:    sum,
		Antivirus:  av,
		Sections:   results,
		Stylesheet: "style.css",
	})

	assert.Contains(t, out, "<title>Brunnhilde report for: acc-001</title>")
	assert.Contains(t, out, `<a name="top"></a>`)
	assert.Contains(t, out, "<p>2024-05-06 07:08:09</p>")
	assert.Contains(t, out, "<p>Total files: 6</p>")
	assert.Contains(t, out, "<p>Years (last modified): 2018 - 2021</p>")
	assert.Contains(t, out, "<p>Distinct files that have duplicates: 2</p>")
	assert.Contains(t, out, "<p>Duplicate copies of distinct files: 2</p>")
	assert.Contains(t, out, "<p>Virus scan skipped.</p>")
	assert.Contains(t, out, `<a name="File formats"></a>`)
	assert.Contains(t, out, "<h3>File formats and versions</h3>")
	assert.Contains(t, out, "Files matching checksum <strong>H1</strong>:")
	assert.Contains(t, out, "Files matching checksum <strong>H3</strong>:")
	assert.NotContains(t, out, "<h3>Warnings</h3>")
	assert.NotContains(t, out, "Personally Identifiable Information")

	sections := len(Sections(store.SchemaWithHash, Options{})) - 1
	assert.Equal(t, sections, strings.Count(out, "Return to top"))
}

func TestRenderEmptySections(t *testing.T) {
	s := loadStore(t, store.SchemaWithoutHash,
		"filename,filesize,modified,errors,namespace,id,format,version,mime,basis,warning\n")
	results, err := Run(context.Background(), s, Sections(store.SchemaWithoutHash, Options{ShowWarnings: true}), t.TempDir())
	require.NoError(t, err)
	sum, err := stats.Compute(context.Background(), s, stats.Options{})
	require.NoError(t, err)

	out := renderDoc(t, &Document{
		Summary:   sum,
		Antivirus: &Antivirus{Enabled: true, Log: "Infected files: 0\n", Infected: 0},
		Sections:  results,
	})

	assert.Equal(t, 7, strings.Count(out, "<p>None found.</p>"))
	assert.NotContains(t, out, "<table")
	assert.Contains(t, out, "<p>Years (last modified): N/A - N/A</p>")
	assert.Contains(t, out, "<h3>File contents</h3>")
	assert.NotContains(t, out, "Distinct files")
	assert.Contains(t, out, "<pre>Infected files: 0</pre>")
}

func TestRenderPIIAndEscaping(t *testing.T) {
	pii := &Result{
		Section: Section{
			Title:  TitlePII,
			Header: []string{"File", "Value Found", "Context"},
			Kind:   KindPII,
			Note:   "Potential PII in source, as identified by bulk_extractor.",
			InHTML: true,
		},
		Rows: [][]string{{"a<b>.txt", "123", "ctx"}},
	}
	out := renderDoc(t, &Document{PII: pii, Antivirus: &Antivirus{Note: SkippedAntivirus}})

	assert.Contains(t, out, "<h3>Personally Identifiable Information (PII)</h3>")
	assert.Contains(t, out, "<td><strong>Value Found</strong></td>")
	assert.Contains(t, out, "<td>a&lt;b&gt;.txt</td>")
	assert.Equal(t, 1, strings.Count(out, "Return to top"))
}
