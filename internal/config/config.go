// Package config loads thesisdl settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/v0xg/thesisdl/internal/browser"
	"github.com/v0xg/thesisdl/internal/discover"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrInvalid        = errors.New("invalid configuration")
)

// MaxFileSize limits the config file read into memory.
const MaxFileSize = 1 << 20

// Defaults.
const (
	DefaultOutputPath = "."
	DefaultTempPath   = "./temp"
	DefaultInterval   = 2 * time.Second
	DefaultTimeout    = browser.DefaultTimeout
)

// Config holds all settings of a download run.
type Config struct {
	Engine     string `yaml:"engine"`
	DriverPath string `yaml:"driver"`
	OutputPath string `yaml:"output"`
	TempPath   string `yaml:"temp"`

	Interval    time.Duration `yaml:"interval"`    // delay between image requests
	Timeout     time.Duration `yaml:"timeout"`     // per browser wait
	HTTPTimeout time.Duration `yaml:"httpTimeout"` // per image request, 0 = none
	Headless    bool          `yaml:"headless"`
	Retries     int           `yaml:"retries"`
	MaxWidth    int           `yaml:"maxWidth"` // 0 keeps original size

	AIProvider string `yaml:"aiProvider"`
	AIModel    string `yaml:"aiModel"`

	Selectors discover.Selectors `yaml:"selectors"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine:     browser.EngineRod,
		OutputPath: DefaultOutputPath,
		TempPath:   DefaultTempPath,
		Interval:   DefaultInterval,
		Timeout:    DefaultTimeout,
		Headless:   true,
		Selectors:  discover.DefaultSelectors(),
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrConfigParse, path, MaxFileSize)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	return cfg, nil
}

// Environment variables recognized by ApplyEnv.
const (
	EnvConfig     = "THESISDL_CONFIG"
	EnvEngine     = "THESISDL_ENGINE"
	EnvDriver     = "THESISDL_DRIVER"
	EnvOutput     = "THESISDL_OUTPUT"
	EnvTemp       = "THESISDL_TEMP"
	EnvInterval   = "THESISDL_INTERVAL"
	EnvTimeout    = "THESISDL_TIMEOUT"
	EnvHeadless   = "THESISDL_HEADLESS"
	EnvRetries    = "THESISDL_RETRIES"
	EnvMaxWidth   = "THESISDL_MAX_WIDTH"
	EnvAIProvider = "THESISDL_AI_PROVIDER"
	EnvAIModel    = "THESISDL_AI_MODEL"
)

// ApplyEnv overlays THESISDL_* variables. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvEngine, &c.Engine)
	str(EnvDriver, &c.DriverPath)
	str(EnvOutput, &c.OutputPath)
	str(EnvTemp, &c.TempPath)
	str(EnvAIProvider, &c.AIProvider)
	str(EnvAIModel, &c.AIModel)

	for key, dst := range map[string]*time.Duration{
		EnvInterval: &c.Interval,
		EnvTimeout:  &c.Timeout,
	} {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
		*dst = d
	}

	for key, dst := range map[string]*int{
		EnvRetries:  &c.Retries,
		EnvMaxWidth: &c.MaxWidth,
	} {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvHeadless); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvHeadless, err)
		}
		c.Headless = b
	}
	return nil
}

// ParseDuration accepts Go durations ("1500ms", "2s") and bare numbers,
// which are taken as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Engine {
	case browser.EngineRod, browser.EngineChromedp, browser.EngineStatic:
	default:
		return fmt.Errorf("%w: unknown engine %q (supported: rod, chromedp, static)", ErrInvalid, c.Engine)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", ErrInvalid)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%w: httpTimeout must not be negative", ErrInvalid)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrInvalid)
	}
	if c.MaxWidth < 0 {
		return fmt.Errorf("%w: maxWidth must not be negative", ErrInvalid)
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalid)
	}
	if strings.TrimSpace(c.TempPath) == "" {
		return fmt.Errorf("%w: temp path is empty", ErrInvalid)
	}
	switch c.AIProvider {
	case "", "claude", "anthropic", "openai", "gpt":
	default:
		return fmt.Errorf("%w: unknown AI provider %q (supported: claude, openai)", ErrInvalid, c.AIProvider)
	}
	return nil
}
