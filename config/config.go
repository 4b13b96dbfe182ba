// Package config loads wiki2html configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the WIKI2HTML_CONFIG environment variable. Without either, Default is
// used as is. The file may carry development and production sections that
// override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/arran4/wiki2html/store"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "WIKI2HTML_CONFIG"

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the complete wiki2html configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Render  RenderConfig  `yaml:"render"`
	Store   StoreConfig   `yaml:"store"`
	Preview PreviewConfig `yaml:"preview"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the per-environment sections. Empty fields leave the
// base value alone.
type Overrides struct {
	Render  *RenderConfig  `yaml:"render,omitempty"`
	Store   *StoreConfig   `yaml:"store,omitempty"`
	Preview *PreviewConfig `yaml:"preview,omitempty"`
}

type RenderConfig struct {
	// ReadBaseURL prefixes links to existing articles.
	// Default: /wiki/
	ReadBaseURL string `yaml:"read_base_url"`

	// EditBaseURL prefixes links to missing articles.
	// Default: /edit/
	EditBaseURL string `yaml:"edit_base_url"`

	// TemplateNamespace is prepended to template names before lookup.
	TemplateNamespace string `yaml:"template_namespace"`

	// MaxTemplateDepth bounds nested transclusion.
	// Default: 40
	MaxTemplateDepth int `yaml:"max_template_depth"`

	// Cache serves repeat renders from the store's render cache.
	Cache bool `yaml:"cache"`
}

type StoreConfig struct {
	// Driver is one of memory, sqlite or bolt.
	// Default: sqlite
	Driver string `yaml:"driver"`

	// Path is the database file. ${HOME} and ${VAR:-default} are expanded.
	// Default: ${HOME}/.local/share/wiki2html/wiki.db
	Path string `yaml:"path"`

	// PoolSize is the number of SQLite connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`

	// Compression is applied to revision content: none, lz4 or zstd.
	// Default: zstd
	Compression string `yaml:"compression"`
}

type PreviewConfig struct {
	Width    int     `yaml:"width"`
	Margin   int     `yaml:"margin"`
	FontSize float64 `yaml:"font_size"`
	// Theme is light or dark.
	Theme string `yaml:"theme"`
	// Fonts are TrueType files replacing the bundled Go fonts.
	Fonts FontsConfig `yaml:"fonts"`
}

type FontsConfig struct {
	Regular    string `yaml:"regular"`
	Bold       string `yaml:"bold"`
	Italic     string `yaml:"italic"`
	BoldItalic string `yaml:"bold_italic"`
	Mono       string `yaml:"mono"`
}

// Default returns the configuration used before any file is applied.
func Default() *Config {
	return &Config{
		Environment: Development,
		Render: RenderConfig{
			ReadBaseURL:      "/wiki/",
			EditBaseURL:      "/edit/",
			MaxTemplateDepth: 40,
			Cache:            true,
		},
		Store: StoreConfig{
			Driver:      "sqlite",
			Path:        filepath.Join("${HOME}", ".local", "share", "wiki2html", "wiki.db"),
			PoolSize:    4,
			Compression: "zstd",
		},
		Preview: PreviewConfig{
			Width:    1024,
			Margin:   48,
			FontSize: 16,
			Theme:    "light",
		},
	}
}

// Load reads the file named by WIKI2HTML_CONFIG, or returns the expanded
// defaults when the variable is unset.
func Load() (*Config, error) {
	if path := os.Getenv(EnvVar); path != "" {
		return LoadFile(path)
	}
	cfg := Default()
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, cfg.Validate()
}

// LoadFile reads the configuration at path over the defaults and applies
// the section for the configured environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var o *Overrides
	switch c.Environment {
	case Development:
		o = c.Development
	case Production:
		o = c.Production
		// Production always caches unless a section says otherwise.
		if o == nil {
			o = &Overrides{Render: &RenderConfig{Cache: true}}
		}
	}
	if o == nil {
		return
	}

	if r := o.Render; r != nil {
		setString(&c.Render.ReadBaseURL, r.ReadBaseURL)
		setString(&c.Render.EditBaseURL, r.EditBaseURL)
		setString(&c.Render.TemplateNamespace, r.TemplateNamespace)
		setInt(&c.Render.MaxTemplateDepth, r.MaxTemplateDepth)
		// Cache is a bool, so the section's value always applies.
		c.Render.Cache = r.Cache
	}
	if s := o.Store; s != nil {
		setString(&c.Store.Driver, s.Driver)
		setString(&c.Store.Path, s.Path)
		setInt(&c.Store.PoolSize, s.PoolSize)
		setString(&c.Store.Compression, s.Compression)
	}
	if p := o.Preview; p != nil {
		setInt(&c.Preview.Width, p.Width)
		setInt(&c.Preview.Margin, p.Margin)
		if p.FontSize > 0 {
			c.Preview.FontSize = p.FontSize
		}
		setString(&c.Preview.Theme, p.Theme)
		setString(&c.Preview.Fonts.Regular, p.Fonts.Regular)
		setString(&c.Preview.Fonts.Bold, p.Fonts.Bold)
		setString(&c.Preview.Fonts.Italic, p.Fonts.Italic)
		setString(&c.Preview.Fonts.BoldItalic, p.Fonts.BoldItalic)
		setString(&c.Preview.Fonts.Mono, p.Fonts.Mono)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func (c *Config) expandVariables() {
	c.Store.Path = expandVars(c.Store.Path)
	f := &c.Preview.Fonts
	for _, p := range []*string{&f.Regular, &f.Bold, &f.Italic, &f.BoldItalic, &f.Mono} {
		*p = expandVars(*p)
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the values the rest of the program would otherwise
// reject later.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "bolt":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store.driver: %q", c.Store.Driver))
	}
	if _, err := store.ParseCompression(c.Store.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.Store.PoolSize < 0 {
		errs = append(errs, errors.New("store.pool_size must not be negative"))
	}
	if c.Render.MaxTemplateDepth < 0 {
		errs = append(errs, errors.New("render.max_template_depth must not be negative"))
	}
	switch c.Preview.Theme {
	case "", "light", "dark":
	default:
		errs = append(errs, fmt.Errorf("invalid preview.theme: %q", c.Preview.Theme))
	}
	return errors.Join(errs...)
}
