// Package pipeline sequences one reporting run: import, statistics, report
// sections, collaborator logs, HTML rendering and identifier linking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jfcarrano/brunnhilde/internal/config"
	"github.com/jfcarrano/brunnhilde/internal/logging"
	"github.com/jfcarrano/brunnhilde/internal/metrics"
	"github.com/jfcarrano/brunnhilde/internal/pronom"
	"github.com/jfcarrano/brunnhilde/internal/report"
	"github.com/jfcarrano/brunnhilde/internal/stats"
	"github.com/jfcarrano/brunnhilde/internal/store"
)

// EffectiveConfigName is the file the run configuration is saved to.
const EffectiveConfigName = "brunnhilde.toml"

// scanTimeLayout formats the scan start time shown in the report.
const scanTimeLayout = "2006-01-02 15:04:05"

// Result is the outcome of a completed run.
type Result struct {
	RunID      string
	ReportDir  string
	HTMLPath   string
	ConfigPath string
	CSVFiles   []string

	Import    store.ImportResult
	Summary   *stats.Summary
	Sections  []*report.Result
	Antivirus *report.Antivirus
	PII       *report.Result
	Links     int
	Elapsed   time.Duration
}

// Pipeline runs reports for one configuration.
type Pipeline struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.RunMetrics
	now     func() time.Time
}

// New creates a pipeline over a snapshot of cfg; later changes to cfg do not
// affect it. A nil logger discards output; nil metrics are replaced by a fresh
// registry.
func New(cfg *config.Config, logger *logging.Logger, m *metrics.RunMetrics) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{
		cfg:     cfg.Clone(),
		logger:  logger.WithComponent("pipeline"),
		metrics: m,
		now:     time.Now,
	}
}

// Run executes the whole pipeline. The store and the draft document are
// released on every return path; the draft never outlives the run.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	cfg := p.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := p.now()
	runID := uuid.NewString()
	log := p.logger.WithRun(runID)

	// Nothing to report on without the feed; fail before creating outputs.
	if _, err := os.Stat(cfg.FeedPath()); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrFeedUnavailable, err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()

	draft := cfg.DraftPath()
	defer func() {
		if rerr := os.Remove(draft); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			log.Warn("remove draft failed", "path", draft, "error", rerr)
		}
	}()

	res = &Result{
		RunID:     runID,
		ReportDir: cfg.ReportDir(),
		HTMLPath:  cfg.HTMLPath(),
	}
	schema := store.SchemaFor(cfg.UseHash())
	log.Info("run started", "source", cfg.Run.Source, "report_dir", res.ReportDir, "schema", schema.Name)

	stop := p.metrics.Time(metrics.StageImport)
	imp, err := st.ImportFile(ctx, cfg.FeedPath(), schema)
	stop()
	if err != nil {
		return nil, fmt.Errorf("import feed: %w", err)
	}
	res.Import = *imp
	p.metrics.ImportedRows.Set(float64(imp.Imported))
	log.Info("feed imported", "rows", imp.Imported, "columns", imp.Columns)
	if imp.Skipped > 0 {
		log.Debug("malformed rows skipped", "rows", imp.Skipped)
	}

	stop = p.metrics.Time(metrics.StageStats)
	sum, err := stats.Compute(ctx, st, stats.Options{Hashing: schema.HasHash(), SourceDir: cfg.Run.Source})
	stop()
	if err != nil {
		return nil, fmt.Errorf("compute statistics: %w", err)
	}
	res.Summary = sum
	p.metrics.ObserveSummary(sum)
	log.Info("statistics computed", "files", sum.Files, "size", sum.Size, "formats", sum.Formats)

	stop = p.metrics.Time(metrics.StageSections)
	sections := report.Sections(schema, report.Options{ShowWarnings: cfg.Run.ShowWarnings})
	results, err := report.Run(ctx, st, sections, cfg.CSVDir())
	stop()
	if err != nil {
		return nil, fmt.Errorf("generate sections: %w", err)
	}
	res.Sections = results
	for _, r := range results {
		res.CSVFiles = append(res.CSVFiles, filepath.Join(cfg.CSVDir(), r.Section.CSVName))
		p.metrics.ObserveSection(r.Section.Title, len(r.Rows))
	}
	log.Info("sections written", "sections", len(results), "dir", cfg.CSVDir())

	if res.Antivirus, err = report.LoadAntivirus(cfg.AntivirusLogPath(), cfg.Collaborators.Antivirus); err != nil {
		return nil, err
	}
	p.metrics.InfectedFiles.Set(float64(res.Antivirus.Infected))
	if res.PII, err = report.LoadPII(cfg.PIILogPath(), cfg.Collaborators.PII); err != nil {
		return nil, err
	}
	if res.PII != nil {
		p.metrics.ObserveSection(res.PII.Section.Title, len(res.PII.Rows))
	}

	doc := &report.Document{
		Provenance: report.Provenance{
			RunID:                runID,
			Source:               cfg.Run.Source,
			Basename:             cfg.Run.Basename,
			ToolVersion:          cfg.Tools.Version,
			CharacterizerVersion: cfg.Tools.CharacterizerVersion,
			CharacterizerCommand: cfg.CharacterizerCommand(),
			ScanStarted:          p.scanStarted(start),
		},
		Summary:    sum,
		Antivirus:  res.Antivirus,
		Sections:   results,
		PII:        res.PII,
		Stylesheet: cfg.Report.Stylesheet,
	}

	stop = p.metrics.Time(metrics.StageRender)
	err = writeDraft(draft, doc)
	stop()
	if err != nil {
		return nil, err
	}

	stop = p.metrics.Time(metrics.StageLinks)
	res.Links, err = pronom.RewriteFile(draft, res.HTMLPath, cfg.Report.RegistryHost)
	stop()
	if err != nil {
		return nil, fmt.Errorf("link identifiers: %w", err)
	}
	p.metrics.Links.Set(float64(res.Links))
	log.Info("report written", "path", res.HTMLPath, "links", res.Links)

	res.ConfigPath = filepath.Join(res.ReportDir, EffectiveConfigName)
	if err := config.Save(cfg, res.ConfigPath); err != nil {
		return nil, fmt.Errorf("save effective config: %w", err)
	}

	if cfg.Report.Metrics {
		if err := p.metrics.WriteFile(cfg.MetricsPath()); err != nil {
			return nil, err
		}
	}

	res.Elapsed = p.now().Sub(start)
	log.Info("run finished", "elapsed", res.Elapsed)
	return res, nil
}

func (p *Pipeline) scanStarted(start time.Time) string {
	if p.cfg.Run.ScanStarted != "" {
		return p.cfg.Run.ScanStarted
	}
	return start.Format(scanTimeLayout)
}

// writeDraft renders doc to path.
func writeDraft(path string, doc *report.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	defer f.Close()

	if err := report.Render(f, doc); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close draft: %w", err)
	}
	return nil
}
