package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jfcarrano/brunnhilde/internal/atomicfile"
)

// decodeFile validates a raw configuration document against the schema and
// decodes it over cfg. The format is chosen from the file extension.
func decodeFile(path string, data []byte, cfg *Config) error {
	var raw map[string]any

	ext := filepath.Ext(path)
	switch ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		format, err := autoDetectAndParse(data, &raw)
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		ext = format
	}

	if err := validateDocument(raw); err != nil {
		return err
	}

	switch ext {
	case ".json":
		return json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

// autoDetectAndParse attempts to parse the config in multiple formats and
// returns the extension of the format that succeeded.
func autoDetectAndParse(data []byte, raw *map[string]any) (string, error) {
	// Try TOML first (most common)
	if _, err := toml.Decode(string(data), raw); err == nil {
		return ".toml", nil
	}

	if err := json.Unmarshal(data, raw); err == nil {
		return ".json", nil
	}

	if err := yaml.Unmarshal(data, raw); err == nil {
		return ".yaml", nil
	}

	return "", fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

// Save writes the configuration to path. The format is chosen from the
// extension; anything other than .json, .yaml or .yml is written as TOML.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = encodeTOML(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := atomicfile.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
