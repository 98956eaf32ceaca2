package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tjun/eol/internal/finder"
	"github.com/tjun/eol/internal/newline"
)

// Config holds settings loaded from an eol config file.
// Zero fields mean "not set" so command-line flags can fill them in.
type Config struct {
	Newline string   `yaml:"newline"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Load reads the config file at path. The format is chosen by extension:
// .hcl for HCL, .yaml or .yml for YAML.
func Load(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		return ParseHCL(content, path)
	case ".yaml", ".yml":
		return ParseYAML(content)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q (want .hcl, .yaml or .yml)", ext)
	}
}

// Validate checks that the newline and patterns are usable.
func (c Config) Validate() error {
	if _, err := newline.Parse(c.Newline); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Glob().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Glob builds the finder described by Include and Exclude.
func (c Config) Glob() finder.Glob {
	return finder.Glob{Include: c.Include, Exclude: c.Exclude}
}
