package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/abramin/sqlbridge/internal/dump"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "sqlbridge.yaml"

// Config represents the SQLBridge configuration.
type Config struct {
	SchemaName   string         `yaml:"schema_name"`
	EntitiesFile string         `yaml:"entities_file"`
	PackagesDir  string         `yaml:"packages_dir"`
	OutputDir    string         `yaml:"output_dir"`
	DBDir        string         `yaml:"db_dir"`
	Encoding     string         `yaml:"encoding"`
	Workers      int            `yaml:"workers"`
	Packages     PackagesConfig `yaml:"packages"`
	Calls        CallsConfig    `yaml:"calls"`
	Render       RenderConfig   `yaml:"render"`
}

// PackagesConfig selects the package source files to index.
type PackagesConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// CallsConfig tunes call extraction and resolution.
type CallsConfig struct {
	LocalPrefixes      []string `yaml:"local_prefixes"`
	LegacyShortCircuit bool     `yaml:"legacy_short_circuit"`
}

// RenderConfig controls Go code generation.
type RenderConfig struct {
	Enabled       *bool             `yaml:"enabled"`
	TypeOverrides map[string]string `yaml:"type_overrides"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	enabled := true
	return &Config{
		OutputDir: "out",
		DBDir:     ".",
		Encoding:  dump.EncodingAuto,
		Workers:   4,
		Packages: PackagesConfig{
			Include: []string{"**.sql", "**.pkb", "**.pks", "**.pck"},
			Exclude: []string{"test/**", "tests/**", "**/test/**", "**/tests/**"},
		},
		Calls: CallsConfig{
			LocalPrefixes: []string{"PK_"},
		},
		Render: RenderConfig{
			Enabled:       &enabled,
			TypeOverrides: map[string]string{},
		},
	}
}

// Load reads configuration from file, falling back to defaults.
// If configPath is empty, it looks for sqlbridge.yaml in the current directory.
// Values set in the file replace the matching defaults.
func Load(configPath string) (*Config, error) {
	defaults := Default()

	if configPath == "" {
		configPath = FileName
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults, nil
		}
		return nil, err
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	defaults.Merge(&fileCfg)
	return defaults, nil
}

// LoadFromDir loads configuration from the specified directory.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Merge combines another config into this one, with other taking precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.SchemaName != "" {
		c.SchemaName = other.SchemaName
	}
	if other.EntitiesFile != "" {
		c.EntitiesFile = other.EntitiesFile
	}
	if other.PackagesDir != "" {
		c.PackagesDir = other.PackagesDir
	}
	if other.OutputDir != "" {
		c.OutputDir = other.OutputDir
	}
	if other.DBDir != "" {
		c.DBDir = other.DBDir
	}
	if other.Encoding != "" {
		c.Encoding = other.Encoding
	}
	if other.Workers > 0 {
		c.Workers = other.Workers
	}
	if len(other.Packages.Include) > 0 {
		c.Packages.Include = other.Packages.Include
	}
	if len(other.Packages.Exclude) > 0 {
		c.Packages.Exclude = other.Packages.Exclude
	}
	if other.Calls.LocalPrefixes != nil {
		c.Calls.LocalPrefixes = other.Calls.LocalPrefixes
	}
	if other.Calls.LegacyShortCircuit {
		c.Calls.LegacyShortCircuit = true
	}
	if other.Render.Enabled != nil {
		c.Render.Enabled = other.Render.Enabled
	}
	if c.Render.TypeOverrides == nil {
		c.Render.TypeOverrides = map[string]string{}
	}
	for k, v := range other.Render.TypeOverrides {
		c.Render.TypeOverrides[strings.ToUpper(k)] = v
	}
}

// Validate reports settings that make indexing impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.SchemaName == "" {
		errs = append(errs, errors.New("schema_name is required"))
	}
	if c.EntitiesFile == "" && c.PackagesDir == "" {
		errs = append(errs, errors.New("one of entities_file or packages_dir is required"))
	}
	if _, err := dump.Decode(nil, c.Encoding); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	for _, p := range append(append([]string{}, c.Packages.Include...), c.Packages.Exclude...) {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("invalid package pattern %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// RenderEnabled reports whether Go code generation is on.
func (c *Config) RenderEnabled() bool {
	return c.Render.Enabled == nil || *c.Render.Enabled
}

// Matcher decides which package source files are indexed.
type Matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// PackageMatcher compiles the include and exclude patterns.
func (c *Config) PackageMatcher() (*Matcher, error) {
	m := &Matcher{}
	for _, p := range c.Packages.Include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling include pattern %q: %w", p, err)
		}
		m.include = append(m.include, g)
	}
	for _, p := range c.Packages.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling exclude pattern %q: %w", p, err)
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

// IsIncluded checks a slash-separated path relative to the packages
// directory. An empty include list accepts every file.
func (m *Matcher) IsIncluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range m.exclude {
		if g.Match(rel) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, g := range m.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
