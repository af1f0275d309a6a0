// Package metrics records run metrics in Prometheus textfile format.
//
// Each run uses its own registry; the result is written next to the report
// for collection by the node exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jfcarrano/brunnhilde/internal/stats"
)

const namespace = "brunnhilde"

// Stage names used as the stage label.
const (
	StageImport   = "import"
	StageStats    = "stats"
	StageSections = "sections"
	StageRender   = "render"
	StageLinks    = "links"
)

// RunMetrics holds the metrics of one run.
type RunMetrics struct {
	registry *prometheus.Registry

	Files          *prometheus.GaugeVec
	SizeBytes      prometheus.Gauge
	ImportedRows   prometheus.Gauge
	SectionRows    *prometheus.GaugeVec
	StageDuration  *prometheus.GaugeVec
	Links          prometheus.Gauge
	InfectedFiles  prometheus.Gauge
	LastRunSeconds prometheus.Gauge
}

// New creates and registers the run metrics on a fresh registry.
func New() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),

		Files: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files",
			Help:      "Characterized files by category",
		}, []string{"category"}),
		SizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_size_bytes",
			Help:      "Total size of the source tree in bytes",
		}),
		ImportedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imported_rows",
			Help:      "Rows imported from the characterization feed",
		}),
		SectionRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "section_rows",
			Help:      "Rows in each report section",
		}, []string{"section"}),
		StageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
		}, []string{"stage"}),
		Links: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pronom_links",
			Help:      "PRONOM identifier links written to the report",
		}),
		InfectedFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "infected_files",
			Help:      "Infected files reported by the antivirus log, -1 if unknown",
		}),
		LastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run completed",
		}),
	}

	m.registry.MustRegister(
		m.Files,
		m.SizeBytes,
		m.ImportedRows,
		m.SectionRows,
		m.StageDuration,
		m.Links,
		m.InfectedFiles,
		m.LastRunSeconds,
	)
	m.InfectedFiles.Set(-1)
	return m
}

// Time starts timing a stage. Call the returned function when it ends.
func (m *RunMetrics) Time(stage string) func() {
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Set(time.Since(start).Seconds())
	}
}

// ObserveSummary records the statistics of a run.
func (m *RunMetrics) ObserveSummary(s *stats.Summary) {
	m.Files.WithLabelValues("total").Set(float64(s.Files))
	m.Files.WithLabelValues("empty").Set(float64(s.EmptyFiles))
	m.Files.WithLabelValues("unidentified").Set(float64(s.Unidentified))
	m.Files.WithLabelValues("errors").Set(float64(s.Errors))
	m.Files.WithLabelValues("warnings").Set(float64(s.Warnings))
	if s.Hashing {
		m.Files.WithLabelValues("distinct").Set(float64(s.DistinctFiles))
		m.Files.WithLabelValues("duplicate_copies").Set(float64(s.DuplicateCopies))
	}
	m.SizeBytes.Set(float64(s.SizeBytes))
}

// ObserveSection records the row count of a report section.
func (m *RunMetrics) ObserveSection(title string, rows int) {
	m.SectionRows.WithLabelValues(title).Set(float64(rows))
}

// WriteFile writes the registry to path in textfile format.
func (m *RunMetrics) WriteFile(path string) error {
	m.LastRunSeconds.SetToCurrentTime()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
