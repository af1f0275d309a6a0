package report

import (
	"bufio"
	"fmt"
	"html/template"
	"io"

	"github.com/Masterminds/sprig/v3"

	"github.com/jfcarrano/brunnhilde/internal/stats"
)

// Provenance identifies the run and the tools that produced its inputs.
type Provenance struct {
	RunID                string
	Source               string
	Basename             string
	ToolVersion          string
	CharacterizerVersion string
	CharacterizerCommand string
	ScanStarted          string
}

// Document is everything rendered into the HTML report.
type Document struct {
	Provenance Provenance
	Summary    *stats.Summary
	Antivirus  *Antivirus
	Sections   []*Result

	// PII is nil when the PII scan was not requested.
	PII *Result

	Stylesheet string
}

// Contents returns the sections shown in the HTML report, in order.
func (d *Document) Contents() []*Result {
	var out []*Result
	for _, r := range d.Sections {
		if r.Section.InHTML {
			out = append(out, r)
		}
	}
	if d.PII != nil {
		out = append(out, d.PII)
	}
	return out
}

var documentTemplate = template.Must(template.New("report").
	Funcs(sprig.HtmlFuncMap()).
	Parse(documentHTML))

// Render writes the HTML report for doc to w.
func Render(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	if err := documentTemplate.Execute(bw, doc); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

const documentHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Brunnhilde report for: {{ .Provenance.Basename }}</title>
<meta http-equiv="Content-Type" content="text/html; charset=utf-8">
<link rel="stylesheet" href="{{ .Stylesheet }}">
</head>
<body style="margin:5px">
<a name="top"></a>
<h1>Brunnhilde HTML report</h1>
<h3>Input source (directory or disk image)</h3>
<p>{{ .Provenance.Source }}</p>
<h3>Accession/Identifier</h3>
<p>{{ .Provenance.Basename }}</p>
<h2>Provenance information</h2>
<h3>Brunnhilde version</h3>
<p>{{ .Provenance.ToolVersion }}</p>
<h3>Siegfried version</h3>
<p>{{ .Provenance.CharacterizerVersion | default "unknown" }}</p>
<h3>Siegfried command</h3>
<p>{{ .Provenance.CharacterizerCommand }}</p>
<h3>Time of scan</h3>
<p>{{ .Provenance.ScanStarted }}</p>
<h3>Run identifier</h3>
<p>{{ .Provenance.RunID }}</p>
{{- with .Summary }}
<h2>Aggregate stats</h2>
<h3>Overview</h3>
<p>Total files: {{ .Files }}</p>
<p>Total size: {{ .Size }}</p>
<p>Years (last modified): {{ .YearRange.Begin }} - {{ .YearRange.End }}</p>
<p>Earliest date: {{ .DateRange.Begin }}</p>
<p>Latest date: {{ .DateRange.End }}</p>
{{- if .Hashing }}
<h3>File contents*</h3>
<p>Distinct files: {{ .DistinctFiles }}</p>
<p>Distinct files that have duplicates: {{ .DistinctDuplicates }}</p>
<p>Duplicate copies of distinct files: {{ .DuplicateCopies }}</p>
{{- else }}
<h3>File contents</h3>
{{- end }}
<p>Empty files: {{ .EmptyFiles }}</p>
{{- if .Hashing }}
<p>*<em>Calculated by hash value. Empty files are not counted in first three categories. Total files = distinct files + duplicate copies + empty files.</em></p>
{{- end }}
<h3>Format identification</h3>
<p>Identified file formats: {{ .Formats }}</p>
<p>Unidentified files: {{ .Unidentified }}</p>
<p>Siegfried warnings: {{ .Warnings }}</p>
<h3>Errors</h3>
<p>Siegfried errors: {{ .Errors }}</p>
{{- end }}
<h2>Virus scan report</h2>
{{- with .Antivirus }}
{{- if .Skipped }}
<p>{{ .Note }}</p>
{{- else }}
<pre>{{ .Log | trimSuffix "\n" }}</pre>
{{- end }}
{{- end }}
<h2>Detailed reports</h2>
{{- range .Contents }}
<p><a href="#{{ .Section.Title }}">{{ .Section.Title }}</a></p>
{{- end }}
{{- range .Contents }}
{{ template "section" . }}
{{- end }}
</body>
</html>
{{ define "section" -}}
<a name="{{ .Section.Title }}"></a>
<h3>{{ .Section.Title }}</h3>
{{- with .Section.Note }}
<p><em>{{ . }}</em></p>
{{- end }}
{{- if .Skipped }}
<p>{{ .Skipped }}</p>
{{- else if .Empty }}
<p>None found.</p>
{{- else if .Section.Grouped }}
{{- range .Groups }}
<p>Files matching checksum <strong>{{ .Hash }}</strong>:</p>
{{ template "table" (dict "Header" $.Section.Header "Rows" .Rows) }}
{{- end }}
{{- else }}
{{ template "table" (dict "Header" .Section.Header "Rows" .Rows) }}
{{- end }}
<p>(<a href="#top">Return to top</a>)</p>
{{- end }}
{{ define "table" -}}
<table class="table table-striped table-bordered table-condensed">
<tr>
{{- range .Header }}
<td><strong>{{ . }}</strong></td>
{{- end }}
</tr>
{{- range .Rows }}
<tr>
{{- range . }}
<td>{{ . }}</td>
{{- end }}
</tr>
{{- end }}
</table>
{{- end }}`
