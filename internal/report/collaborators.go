package report

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// piiBanner is the number of header lines bulk_extractor writes before data.
const piiBanner = 5

// SkippedAntivirus is shown when the virus scan did not run.
const SkippedAntivirus = "Virus scan skipped."

// Antivirus is the embedded clamscan log.
type Antivirus struct {
	Enabled bool
	Path    string
	Log     string

	// Infected is the clamscan "Infected files" count, or -1 if absent.
	Infected int

	// Note replaces the log when the scan was skipped.
	Note string
}

// Skipped reports whether the log is replaced by a note.
func (a *Antivirus) Skipped() bool {
	return a.Note != ""
}

// LoadAntivirus reads the antivirus log at path. A disabled scan or a missing
// log yields a skipped note rather than an error.
func LoadAntivirus(path string, enabled bool) (*Antivirus, error) {
	av := &Antivirus{Enabled: enabled, Path: path, Infected: -1}
	if !enabled {
		av.Note = SkippedAntivirus
		return av, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		av.Note = fmt.Sprintf("%s No log found at %s.", SkippedAntivirus, path)
		return av, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read antivirus log: %w", err)
	}

	av.Log = string(data)
	av.Infected = infectedCount(av.Log)
	return av, nil
}

func infectedCount(log string) int {
	sc := bufio.NewScanner(strings.NewReader(log))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		rest, ok := strings.CutPrefix(line, "Infected files:")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			return n
		}
	}
	return -1
}

// LoadPII reads the tab-delimited bulk_extractor PII log into a section
// result. The banner lines are skipped, as are blank and comment lines. A
// disabled scan returns nil; a missing log yields a skipped note.
func LoadPII(path string, enabled bool) (*Result, error) {
	if !enabled {
		return nil, nil
	}
	res := &Result{
		Section: Section{
			Title:  TitlePII,
			Header: []string{"File", "Value Found", "Context"},
			Kind:   KindPII,
			Note:   "Potential PII in source, as identified by bulk_extractor.",
			InHTML: true,
		},
		Rows: [][]string{},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		res.Skipped = fmt.Sprintf("PII scan skipped. No log found at %s.", path)
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read PII log: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 0; sc.Scan(); n++ {
		if n < piiBanner {
			continue
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res.Rows = append(res.Rows, strings.Split(line, "\t"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan PII log: %w", err)
	}
	return res, nil
}
