// Command brunnhilde builds a characterization report from a siegfried feed.
//
// Usage:
//
//	brunnhilde [flags] <source> <destination> <basename>
//
// The feed defaults to <destination>/<basename>/siegfried.csv. The report is
// written to <destination>/<basename>/<basename>.html, with one CSV per
// section under csv_reports/.
//
// Examples:
//
//	# Report on an existing feed with md5 hashes
//	brunnhilde /data/accession-1 /reports accession-1
//
//	# No hashes, show warnings, include the bulk_extractor PII log
//	brunnhilde -hash none -w -b /data/accession-1 /reports accession-1
//
//	# Rebuild the report whenever the feed is rewritten
//	brunnhilde -watch /data/accession-1 /reports accession-1
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jfcarrano/brunnhilde/internal/config"
	"github.com/jfcarrano/brunnhilde/internal/logging"
	"github.com/jfcarrano/brunnhilde/internal/pipeline"
	"github.com/jfcarrano/brunnhilde/internal/ui"
	"github.com/jfcarrano/brunnhilde/internal/watcher"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds the command line.
type options struct {
	configPath   string
	hash         string
	showWarnings bool
	noAntivirus  bool
	pii          bool
	archives     bool
	throttle     bool
	feed         string
	avLog        string
	piiLog       string
	logLevel     string
	metrics      bool
	watch        bool
	debounce     time.Duration
	version      bool
	quiet        bool
	args         []string
	set          map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}
	flags := flag.NewFlagSet("brunnhilde", flag.ContinueOnError)
	flags.SetOutput(stderr)

	flags.StringVar(&o.configPath, "config", "", "configuration file (TOML, YAML or JSON)")
	flags.StringVar(&o.hash, "hash", "md5", "hash algorithm of the feed: md5, sha1, sha256, sha512, none")
	flags.BoolVar(&o.showWarnings, "w", false, "add the siegfried warnings section to the HTML report")
	flags.BoolVar(&o.noAntivirus, "n", false, "virus scan was skipped")
	flags.BoolVar(&o.pii, "b", false, "add the bulk_extractor PII section")
	flags.BoolVar(&o.archives, "z", false, "siegfried scanned archive contents")
	flags.BoolVar(&o.throttle, "t", false, "siegfried was throttled")
	flags.StringVar(&o.feed, "feed", "", "characterization CSV (default: <report dir>/siegfried.csv)")
	flags.StringVar(&o.avLog, "av-log", "", "antivirus log (default: <report dir>/logs/viruscheck-log.txt)")
	flags.StringVar(&o.piiLog, "pii-log", "", "PII log (default: <report dir>/bulk_extractor/pii.txt)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&o.metrics, "metrics", false, "write metrics.prom into the report directory")
	flags.BoolVar(&o.watch, "watch", false, "rebuild the report whenever the inputs change")
	flags.DurationVar(&o.debounce, "debounce", 2*time.Second, "quiet period before a changed input triggers a rebuild")
	flags.BoolVar(&o.quiet, "quiet", false, "do not print the summary")
	flags.BoolVar(&o.version, "version", false, "print version and exit")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "brunnhilde - Characterization reports from siegfried output\n\n")
		fmt.Fprintf(stderr, "Usage: brunnhilde [flags] <source> <destination> <basename>\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\nEnvironment variables prefixed BRUNNHILDE_ override the config file;\n")
		fmt.Fprintf(stderr, "flags override both. A .env file in the working directory is loaded first.\n")
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	flags.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	o.args = flags.Args()
	return o, nil
}

// apply overrides cfg with the flags given on the command line.
func (o *options) apply(cfg *config.Config) {
	if len(o.args) > 0 {
		cfg.Run.Source = o.args[0]
	}
	if len(o.args) > 1 {
		cfg.Run.Destination = o.args[1]
	}
	if len(o.args) > 2 {
		cfg.Run.Basename = o.args[2]
	}
	if o.set["hash"] {
		cfg.Run.HashAlgorithm = o.hash
	}
	if o.set["w"] {
		cfg.Run.ShowWarnings = o.showWarnings
	}
	if o.set["n"] {
		cfg.Collaborators.Antivirus = !o.noAntivirus
	}
	if o.set["b"] {
		cfg.Collaborators.PII = o.pii
	}
	if o.set["z"] {
		cfg.Run.ScanArchives = o.archives
	}
	if o.set["t"] {
		cfg.Run.Throttle = o.throttle
	}
	if o.feed != "" {
		cfg.Run.FeedPath = o.feed
	}
	if o.avLog != "" {
		cfg.Collaborators.AntivirusLog = o.avLog
	}
	if o.piiLog != "" {
		cfg.Collaborators.PIILog = o.piiLog
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.set["metrics"] {
		cfg.Report.Metrics = o.metrics
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if o.version {
		fmt.Fprintf(stdout, "brunnhilde %s (commit %s, built %s)\n", version, commit, buildTime)
		return 0
	}
	if len(o.args) != 3 {
		fmt.Fprintf(stderr, "Error: expected <source> <destination> <basename>\n")
		return 2
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Close()

	if err := buildReport(ctx, cfg, logger, stdout, o.quiet); err != nil {
		logger.Error("run failed", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if !o.watch {
			return 1
		}
	}

	if o.watch {
		if err := watch(ctx, cfg, logger, stdout, o); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := &logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.LogFilePath(),
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "brunnhilde",
	}
	if cfg.Logging.Output == "stderr" {
		lc.Writer = stderr
	}
	return logging.New(lc)
}

// buildReport runs the pipeline once and prints the summary.
func buildReport(ctx context.Context, cfg *config.Config, logger *logging.Logger, stdout io.Writer, quiet bool) error {
	res, err := pipeline.New(cfg, logger, nil).Run(ctx)
	if err != nil {
		return err
	}
	if !quiet {
		ui.PrintSummary(stdout, ui.Completion{
			Basename:   cfg.Run.Basename,
			ReportPath: res.HTMLPath,
			Summary:    res.Summary,
			Infected:   res.Antivirus.Infected,
			Elapsed:    res.Elapsed,
		})
	}
	return nil
}

// watch rebuilds the report each time one of the inputs changes, until ctx
// is cancelled.
func watch(ctx context.Context, cfg *config.Config, logger *logging.Logger, stdout io.Writer, o *options) error {
	paths := []string{cfg.FeedPath()}
	if cfg.Collaborators.Antivirus {
		paths = append(paths, cfg.AntivirusLogPath())
	}
	if cfg.Collaborators.PII {
		paths = append(paths, cfg.PIILogPath())
	}

	w, err := watcher.New(paths, o.debounce)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	log := logger.WithComponent("watch")
	log.Info("watching inputs", "paths", paths, "debounce", o.debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return nil
		case c, ok := <-w.Changes():
			if !ok {
				return nil
			}
			log.Info("input changed", "path", c.Path, "size", c.Size)
			if err := buildReport(ctx, cfg, logger, stdout, o.quiet); err != nil {
				log.Error("run failed", "error", err)
			}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		}
	}
}
