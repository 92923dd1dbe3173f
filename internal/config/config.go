// Package config loads and validates the downloader configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// Duration is a time.Duration that reads human-friendly YAML values like
// "500ms" or "2s". Bare integers are taken as nanoseconds.
type Duration time.Duration

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", raw)
	}
	*d = Duration(ns)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// AssetFailurePolicy controls what happens to a chapter whose referenced
// asset could not be fetched.
type AssetFailurePolicy string

const (
	// AssetFailureOmit drops the broken reference and keeps the chapter.
	AssetFailureOmit AssetFailurePolicy = "omit"
	// AssetFailureFailChapter marks the referencing chapter as failed.
	AssetFailureFailChapter AssetFailurePolicy = "fail-chapter"
)

// Config represents the application configuration
type Config struct {
	// Remote service
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout Duration `yaml:"request_timeout"`

	// Fetching
	MaxConcurrency   int      `yaml:"max_concurrency"`
	MaxRetryAttempts int      `yaml:"max_retry_attempts"`
	BackoffBase      Duration `yaml:"backoff_base"`
	BackoffCeiling   Duration `yaml:"backoff_ceiling"`
	RunTimeout       Duration `yaml:"run_timeout"` // 0 = unbounded

	// Transformation
	ReaderOptimized    bool               `yaml:"reader_optimized"`
	AssetFailurePolicy AssetFailurePolicy `yaml:"asset_failure_policy"`

	// Assembly
	FailureThresholdRatio float64 `yaml:"failure_threshold_ratio"`
	DestinationDirectory  string  `yaml:"destination_directory"`

	// Auth
	CookieFile string `yaml:"cookie_file"`
}

// Default returns the built-in defaults used when no configuration file is
// given.
func Default() *Config {
	return &Config{
		BaseURL:               "https://learning.oreilly.com",
		RequestTimeout:        Duration(30 * time.Second),
		MaxConcurrency:        5,
		MaxRetryAttempts:      3,
		BackoffBase:           Duration(500 * time.Millisecond),
		BackoffCeiling:        Duration(10 * time.Second),
		ReaderOptimized:       false,
		AssetFailurePolicy:    AssetFailureOmit,
		FailureThresholdRatio: 0.2,
		DestinationDirectory:  "Books",
		CookieFile:            "cookies.json",
	}
}

// Load loads configuration from the specified file. Environment variables are
// expanded in the YAML content, and a .env file is honored if present.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; missing file is fine.
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to read config file").
			WithContext("path", configPath)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to unmarshal config").
			WithContext("path", configPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges; zero values fall back to defaults where that
// is unambiguous.
func (c *Config) Validate() error {
	def := Default()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = def.MaxRetryAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = def.BackoffCeiling
	}
	if c.DestinationDirectory == "" {
		c.DestinationDirectory = def.DestinationDirectory
	}
	if c.AssetFailurePolicy == "" {
		c.AssetFailurePolicy = def.AssetFailurePolicy
	}
	if c.RunTimeout < 0 {
		return errors.ValidationFailed("run_timeout", "must not be negative")
	}
	if c.FailureThresholdRatio < 0 || c.FailureThresholdRatio > 1 {
		return errors.ValidationFailed("failure_threshold_ratio",
			fmt.Sprintf("must be in [0,1], got %v", c.FailureThresholdRatio))
	}
	switch c.AssetFailurePolicy {
	case AssetFailureOmit, AssetFailureFailChapter:
	default:
		return errors.ValidationFailed("asset_failure_policy",
			fmt.Sprintf("must be %q or %q", AssetFailureOmit, AssetFailureFailChapter))
	}
	return nil
}

// Init writes a starter configuration file with the defaults spelled out.
func Init(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return errors.New(errors.CategoryConfig, errors.SeverityFatal, "configuration file already exists").
				WithContext("path", configPath)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to marshal default config")
	}
	if err := os.WriteFile(configPath, data, 0o640); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to write config file").
			WithContext("path", configPath)
	}
	return nil
}
