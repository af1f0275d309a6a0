// Package pronom links PRONOM format identifiers to the registry.
package pronom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/jfcarrano/brunnhilde/internal/atomicfile"
)

// DefaultHost serves the PRONOM registry pages.
const DefaultHost = "nationalarchives.gov.uk"

// puid matches fmt/N and x-fmt/N identifiers.
var puid = regexp.MustCompile(`(?:x-)?fmt/[0-9]+`)

// Link returns the anchor element for one identifier.
func Link(host, id string) string {
	return fmt.Sprintf(`<a href="http://%s/PRONOM/%s" target="_blank">%s</a>`, host, id, id)
}

// RewriteLine replaces every identifier in line with a registry link. Each
// match is replaced once, in a single pass over the input.
func RewriteLine(line, host string) string {
	return puid.ReplaceAllStringFunc(line, func(id string) string {
		return Link(host, id)
	})
}

// Rewrite copies src to dst line by line, linking every identifier. Line
// endings and unmatched text are preserved.
func Rewrite(dst io.Writer, src io.Reader, host string) (int, error) {
	if host == "" {
		host = DefaultHost
	}
	r := bufio.NewReader(src)
	w := bufio.NewWriter(dst)
	links := 0
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			links += len(puid.FindAllStringIndex(line, -1))
			if _, werr := w.WriteString(RewriteLine(line, host)); werr != nil {
				return links, fmt.Errorf("write line: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return links, fmt.Errorf("read line: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return links, fmt.Errorf("flush: %w", err)
	}
	return links, nil
}

// RewriteFile writes a linked copy of the document at src to dst and returns
// the number of links written.
func RewriteFile(src, dst, host string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open draft: %w", err)
	}
	defer in.Close()

	out, err := atomicfile.Create(dst, 0644)
	if err != nil {
		return 0, fmt.Errorf("create report: %w", err)
	}
	defer out.Abort()

	n, err := Rewrite(out, in, host)
	if err != nil {
		return n, err
	}
	if err := out.Commit(); err != nil {
		return n, fmt.Errorf("commit report: %w", err)
	}
	return n, nil
}
