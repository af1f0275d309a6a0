package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/transform"
)

const hashedHeader = "filename,filesize,modified,errors,md5,namespace,id,format,version,mime,basis,warning\n"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "siegfried.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func hashedRow(name, size, hash string) string {
	return name + "," + size + ",2020-01-02T03:04:05Z,," + hash + ",pronom,fmt/40,Microsoft Word Document,97-2003,application/msword,extension match,\n"
}

func importHashed(t *testing.T, s *Store, feed string) *ImportResult {
	t.Helper()
	res, err := s.Import(context.Background(), strings.NewReader(feed), SchemaWithHash)
	require.NoError(t, err)
	return res
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "subdir", "nested", "test.db"))
	require.NoError(t, err)
	defer s.Close()
}

func TestOpenUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	_, err := Open(filepath.Join(file, "siegfried.sqlite"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestSchemaFor(t *testing.T) {
	assert.Equal(t, 12, SchemaFor(true).Width())
	assert.True(t, SchemaFor(true).HasHash())
	assert.Equal(t, "hash", SchemaWithHash.Columns[SchemaWithHash.HashIndex])

	assert.Equal(t, 11, SchemaFor(false).Width())
	assert.False(t, SchemaFor(false).HasHash())
	assert.Len(t, SchemaWithoutHash.Header, 11)
}

func TestRecordValuesOrder(t *testing.T) {
	r := HashedRecord{
		Record: Record{Filename: "a", Filesize: "1", Namespace: "pronom", Warning: "w"},
		Hash:   "h",
	}
	v := r.Values()
	require.Len(t, v, SchemaWithHash.Width())
	assert.Equal(t, "h", v[SchemaWithHash.HashIndex])
	assert.Equal(t, "pronom", v[5])
	assert.Equal(t, "w", v[11])

	assert.Len(t, r.Record.Values(), SchemaWithoutHash.Width())
}

func TestFileSizeIsEmpty(t *testing.T) {
	assert.True(t, FileSize("0").IsEmpty())
	assert.False(t, FileSize("00").IsEmpty())
	assert.False(t, FileSize("").IsEmpty())
}

func TestImportCountsWellFormedRows(t *testing.T) {
	s := openTestStore(t)

	feed := hashedHeader +
		hashedRow("a.doc", "10", "h1") +
		"short,row\n" +
		hashedRow("b.doc", "10", "h1") +
		hashedRow("c.doc", "0", "h1") + strings.TrimSuffix(hashedRow("extra", "1", "x"), "\n") + ",too,many\n"

	res := importHashed(t, s, feed)
	assert.Equal(t, int64(3), res.Imported)
	assert.Equal(t, int64(2), res.Skipped)
	assert.Equal(t, 12, res.Columns)

	n, err := s.Count(context.Background(), "SELECT COUNT(*) FROM siegfried")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestImportIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	feed := hashedHeader + hashedRow("a.doc", "10", "h1") + hashedRow("b.doc", "5", "h2")

	importHashed(t, s, feed)
	first, err := s.HashedRecords(context.Background(), "")
	require.NoError(t, err)

	importHashed(t, s, feed)
	second, err := s.HashedRecords(context.Background(), "")
	require.NoError(t, err)

	assert.Len(t, second, 2)
	assert.Equal(t, first, second)
}

func TestImportPreservesText(t *testing.T) {
	s := openTestStore(t)
	importHashed(t, s, hashedHeader+hashedRow("a.doc", "0010", "h1"))

	recs, err := s.HashedRecords(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, FileSize("0010"), recs[0].Filesize)
	assert.Equal(t, "h1", recs[0].Hash)
	assert.Equal(t, "fmt/40", recs[0].ID)
}

func TestImportStripsNUL(t *testing.T) {
	s := openTestStore(t)
	feed := hashedHeader + "a\x00.doc,10,,,h1,pronom,UNKNOWN,,,,,\n"
	importHashed(t, s, feed)

	names, err := s.Strings(context.Background(), "SELECT filename FROM siegfried")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.doc"}, names)
}

func TestImportKeepsNonUTF8Bytes(t *testing.T) {
	s := openTestStore(t)
	importHashed(t, s, hashedHeader+hashedRow("caf\xe9.doc", "10", "h1")+hashedRow("a\x00b.doc", "10", "h2"))

	names, err := s.Strings(context.Background(), "SELECT filename FROM siegfried ORDER BY rowid")
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\xe9.doc", "ab.doc"}, names)
	assert.Equal(t, []byte("caf\xe9.doc"), []byte(names[0]))

	recs, err := s.HashedRecords(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "caf\xe9.doc", recs[0].Filename)
}

func TestNULStripperShortDestination(t *testing.T) {
	src := []byte("ab\x00cd\x00\x00e\xff")
	var out []byte
	dst := make([]byte, 2)
	for len(src) > 0 {
		nDst, nSrc, err := nulStripper{}.Transform(dst, src, true)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		if err != nil {
			require.ErrorIs(t, err, transform.ErrShortDst)
		}
	}
	assert.Equal(t, []byte("abcde\xff"), out)
}

func TestImportEmptyFeed(t *testing.T) {
	s := openTestStore(t)
	res := importHashed(t, s, "")
	assert.Equal(t, int64(0), res.Imported)

	n, err := s.Count(context.Background(), "SELECT COUNT(*) FROM siegfried")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportHeaderOnlyReplacesPreviousRun(t *testing.T) {
	s := openTestStore(t)
	importHashed(t, s, hashedHeader+hashedRow("a.doc", "10", "h1"))
	importHashed(t, s, hashedHeader)

	n, err := s.Count(context.Background(), "SELECT COUNT(*) FROM siegfried")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportHeaderWidthMismatch(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Import(context.Background(), strings.NewReader(hashedHeader), SchemaWithoutHash)
	assert.ErrorIs(t, err, ErrHeaderWidth)
}

func TestImportUnhashed(t *testing.T) {
	s := openTestStore(t)
	feed := "filename,filesize,modified,errors,namespace,id,format,version,mime,basis,warning\n" +
		"a.txt,3,2019-05-01,,pronom,x-fmt/111,Plain Text File,,text/plain,text match,\n"
	res, err := s.Import(context.Background(), strings.NewReader(feed), SchemaWithoutHash)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Imported)

	recs, err := s.Records(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "x-fmt/111", recs[0].ID)
	assert.Equal(t, FileSize("3"), recs[0].Filesize)
}

func TestRecordsFilter(t *testing.T) {
	s := openTestStore(t)
	importHashed(t, s, hashedHeader+
		hashedRow("a.doc", "10", "h1")+
		"b.bin,4,2020-01-01,,h2,pronom,UNKNOWN,,,,,no match\n"+
		"c.bin,4,2020-01-01,,h3,pronom,UNKNOWN,,,,,no match\n")

	recs, err := s.HashedRecords(context.Background(), "id = 'UNKNOWN'")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b.bin", recs[0].Filename)
	assert.Equal(t, "c.bin", recs[1].Filename)
	assert.Equal(t, "no match", recs[0].Warning)

	none, err := s.HashedRecords(context.Background(), "errors <> ''")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestImportFileMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), SchemaWithHash)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestDuplicates(t *testing.T) {
	s := openTestStore(t)
	feed := hashedHeader +
		hashedRow("A", "10", "H1") +
		hashedRow("B", "10", "H1") +
		hashedRow("C", "0", "H1") +
		hashedRow("D", "5", "H2") +
		hashedRow("E", "7", "") +
		hashedRow("F", "7", "")
	importHashed(t, s, feed)

	dups, err := s.Duplicates(context.Background())
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, "A", dups[0].Filename)
	assert.Equal(t, "B", dups[1].Filename)
	assert.Equal(t, "H1", dups[0].Hash)

	n, err := s.Count(context.Background(), "SELECT COUNT(*)"+DuplicatesFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(len(dups)), n)
}

func TestDuplicatesSameNameIsNotDuplicate(t *testing.T) {
	s := openTestStore(t)
	importHashed(t, s, hashedHeader+hashedRow("A", "10", "H1")+hashedRow("A", "10", "H1"))

	dups, err := s.Duplicates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestRowsRendersText(t *testing.T) {
	s := openTestStore(t)
	importHashed(t, s, hashedHeader+hashedRow("a.doc", "10", "h1"))

	rows, err := s.Rows(context.Background(), "SELECT format, COUNT(*) AS num FROM siegfried GROUP BY format")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Microsoft Word Document", "1"}}, rows)
}
