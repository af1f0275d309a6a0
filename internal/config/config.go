// Package config handles configuration loading, validation, and management for brunnhilde.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Default values shared by the CLI and the pipeline.
const (
	DefaultToolVersion  = "brunnhilde 1.6.0"
	DefaultRegistryHost = "nationalarchives.gov.uk"
	DefaultStylesheet   = "https://maxcdn.bootstrapcdn.com/bootstrap/3.3.7/css/bootstrap.min.css"

	// HashNone disables content hashing for the run.
	HashNone = "none"
)

// Config holds the complete configuration of one reporting run.
//
// A Config is built once (defaults, file, environment, flags), validated, and
// then only read. Components receive it by pointer and never modify it.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Run describes the source being reported on and the output location.
	Run RunConfig `toml:"run" json:"run" yaml:"run"`

	// Tools holds provenance strings echoed into the report.
	Tools ToolsConfig `toml:"tools" json:"tools" yaml:"tools"`

	// Collaborators locates artifacts produced by external tools.
	Collaborators CollaboratorsConfig `toml:"collaborators" json:"collaborators" yaml:"collaborators"`

	// Report controls output rendering.
	Report ReportConfig `toml:"report" json:"report" yaml:"report"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// RunConfig holds per-run source and destination settings.
type RunConfig struct {
	// Source is the characterized directory. Its tree is walked for the total size.
	Source string `toml:"source" json:"source" yaml:"source"`

	// Destination is the parent directory for the report directory.
	Destination string `toml:"destination" json:"destination" yaml:"destination"`

	// Basename is the accession number or identifier; it names the report directory
	// and the final HTML file.
	Basename string `toml:"basename" json:"basename" yaml:"basename"`

	// FeedPath is the characterization CSV. Defaults to <report dir>/siegfried.csv.
	FeedPath string `toml:"feed_path" json:"feed_path" yaml:"feed_path"`

	// HashAlgorithm is md5, sha1, sha256, sha512 or none.
	HashAlgorithm string `toml:"hash_algorithm" json:"hash_algorithm" yaml:"hash_algorithm"`

	// ShowWarnings adds the Warnings section to the HTML report.
	ShowWarnings bool `toml:"show_warnings" json:"show_warnings" yaml:"show_warnings"`

	// ScanArchives records that the characterizer decompressed archives (-z).
	ScanArchives bool `toml:"scan_archives" json:"scan_archives" yaml:"scan_archives"`

	// Throttle records that the characterizer was throttled between scans.
	Throttle bool `toml:"throttle" json:"throttle" yaml:"throttle"`

	// ScanStarted is the scan start timestamp. Empty means the pipeline start time.
	ScanStarted string `toml:"scan_started" json:"scan_started" yaml:"scan_started"`
}

// ToolsConfig holds tool provenance.
type ToolsConfig struct {
	Version              string `toml:"version" json:"version" yaml:"version"`
	CharacterizerVersion string `toml:"characterizer_version" json:"characterizer_version" yaml:"characterizer_version"`

	// CharacterizerCommand is the exact command line used to produce the feed.
	// When empty it is reconstructed from the run options.
	CharacterizerCommand string `toml:"characterizer_command" json:"characterizer_command" yaml:"characterizer_command"`
}

// CollaboratorsConfig locates optional external artifacts.
type CollaboratorsConfig struct {
	// Antivirus enables the virus scan section.
	Antivirus bool `toml:"antivirus" json:"antivirus" yaml:"antivirus"`

	// AntivirusLog defaults to <report dir>/logs/viruscheck-log.txt.
	AntivirusLog string `toml:"antivirus_log" json:"antivirus_log" yaml:"antivirus_log"`

	// PII enables the personally identifiable information section.
	PII bool `toml:"pii" json:"pii" yaml:"pii"`

	// PIILog defaults to <report dir>/bulk_extractor/pii.txt.
	PIILog string `toml:"pii_log" json:"pii_log" yaml:"pii_log"`
}

// ReportConfig holds rendering options.
type ReportConfig struct {
	// RegistryHost is the host serving PRONOM format pages.
	RegistryHost string `toml:"registry_host" json:"registry_host" yaml:"registry_host"`

	// Stylesheet is linked from the HTML head.
	Stylesheet string `toml:"stylesheet" json:"stylesheet" yaml:"stylesheet"`

	// Metrics writes metrics.prom into the report directory.
	Metrics bool `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: stdout, stderr, file, or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when output includes a file.
	// Defaults to <report dir>/logs/brunnhilde.log.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Run: RunConfig{
			HashAlgorithm: "md5",
		},
		Tools: ToolsConfig{
			Version: DefaultToolVersion,
		},
		Collaborators: CollaboratorsConfig{
			Antivirus: true,
		},
		Report: ReportConfig{
			RegistryHost: DefaultRegistryHost,
			Stylesheet:   DefaultStylesheet,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads configuration from the specified path.
// If path is empty or the file doesn't exist, the defaults are returned.
// Supports TOML, JSON, and YAML formats based on file extension. The document is
// checked against the embedded JSON schema before it is decoded.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := decodeFile(path, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// UseHash reports whether the feed carries a content hash column.
func (c *Config) UseHash() bool {
	return c.Run.HashAlgorithm != HashNone
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with BRUNNHILDE_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BRUNNHILDE_FEED_PATH"); v != "" {
		c.Run.FeedPath = v
	}
	if v := os.Getenv("BRUNNHILDE_HASH"); v != "" {
		c.Run.HashAlgorithm = strings.ToLower(v)
	}
	if v := os.Getenv("BRUNNHILDE_CHARACTERIZER_VERSION"); v != "" {
		c.Tools.CharacterizerVersion = v
	}
	if v := os.Getenv("BRUNNHILDE_REGISTRY_HOST"); v != "" {
		c.Report.RegistryHost = v
	}
	if v := os.Getenv("BRUNNHILDE_ANTIVIRUS_LOG"); v != "" {
		c.Collaborators.AntivirusLog = v
	}
	if v := os.Getenv("BRUNNHILDE_PII_LOG"); v != "" {
		c.Collaborators.PIILog = v
	}
	if v := os.Getenv("BRUNNHILDE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("BRUNNHILDE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a copy of the configuration. Config holds no reference fields,
// so a shallow copy is a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// ReportDir returns <destination>/<basename>.
func (c *Config) ReportDir() string {
	return filepath.Join(c.Run.Destination, c.Run.Basename)
}

// CSVDir returns the directory holding one CSV export per report section.
func (c *Config) CSVDir() string {
	return filepath.Join(c.ReportDir(), "csv_reports")
}

// LogDir returns the directory holding collaborator and run logs.
func (c *Config) LogDir() string {
	return filepath.Join(c.ReportDir(), "logs")
}

// StorePath returns the path of the SQLite store.
func (c *Config) StorePath() string {
	return filepath.Join(c.ReportDir(), "siegfried.sqlite")
}

// DraftPath returns the path of the HTML draft, removed after link rewriting.
func (c *Config) DraftPath() string {
	return filepath.Join(c.ReportDir(), "temp.html")
}

// HTMLPath returns the path of the finished HTML report.
func (c *Config) HTMLPath() string {
	return filepath.Join(c.ReportDir(), c.Run.Basename+".html")
}

// MetricsPath returns the path of the metrics textfile.
func (c *Config) MetricsPath() string {
	return filepath.Join(c.ReportDir(), "metrics.prom")
}

// FeedPath returns the characterization feed path.
func (c *Config) FeedPath() string {
	if c.Run.FeedPath != "" {
		return c.Run.FeedPath
	}
	return filepath.Join(c.ReportDir(), "siegfried.csv")
}

// AntivirusLogPath returns the antivirus log path.
func (c *Config) AntivirusLogPath() string {
	if c.Collaborators.AntivirusLog != "" {
		return c.Collaborators.AntivirusLog
	}
	return filepath.Join(c.LogDir(), "viruscheck-log.txt")
}

// PIILogPath returns the PII log path.
func (c *Config) PIILogPath() string {
	if c.Collaborators.PIILog != "" {
		return c.Collaborators.PIILog
	}
	return filepath.Join(c.ReportDir(), "bulk_extractor", "pii.txt")
}

// LogFilePath returns the run log file path.
func (c *Config) LogFilePath() string {
	if c.Logging.FilePath != "" {
		return c.Logging.FilePath
	}
	return filepath.Join(c.LogDir(), "brunnhilde.log")
}

// CharacterizerCommand returns the configured command line, or the siegfried
// invocation implied by the run options.
func (c *Config) CharacterizerCommand() string {
	if c.Tools.CharacterizerCommand != "" {
		return c.Tools.CharacterizerCommand
	}

	var b strings.Builder
	b.WriteString("sf")
	if c.Run.ScanArchives {
		b.WriteString(" -z")
	}
	b.WriteString(" -csv")
	if c.UseHash() {
		if c.Run.Throttle {
			b.WriteString(" -throttle 10ms")
		}
		fmt.Fprintf(&b, " -hash %s", c.Run.HashAlgorithm)
	}
	fmt.Fprintf(&b, ` "%s" > "%s"`, c.Run.Source, c.FeedPath())
	return b.String()
}

// EnsureDirectories creates the report and CSV directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.ReportDir(), c.CSVDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// encodeTOML renders the configuration as TOML.
func encodeTOML(cfg *Config) ([]byte, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode TOML: %w", err)
	}
	return []byte(b.String()), nil
}
