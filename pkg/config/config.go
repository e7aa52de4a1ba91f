// Package config holds the settings of a test run. Values come from built-in
// defaults, an optional YAML file and the environment, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Environment selects the deployment under test.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Default base URLs per environment. STAGING_URL and PROD_URL override the
// last two; BASE_URL overrides whichever is selected.
var environmentURLs = map[Environment]string{
	EnvDevelopment: "https://aqxtrader.aquariux.com",
	EnvStaging:     "https://staging.aqxtrader.aquariux.com",
	EnvProduction:  "https://aqxtrader.aquariux.com",
}

// Config is the effective configuration of one worker. DisplayName, when set,
// must appear in the header after login.
type Config struct {
	Environment Environment `mapstructure:"environment" yaml:"environment"`
	BaseURL     string      `mapstructure:"base_url" yaml:"base_url"`
	Username    string      `mapstructure:"username" yaml:"username"`
	Password    string      `mapstructure:"password" yaml:"password"`
	DisplayName string      `mapstructure:"display_name" yaml:"display_name,omitempty"`

	Browser   BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Timeouts  TimeoutConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Retry     RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Output    OutputConfig   `mapstructure:"output" yaml:"output"`
	Logging   LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Artifacts ArtifactConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// BrowserConfig controls the launched browser and its context.
type BrowserConfig struct {
	Name           string        `mapstructure:"name" yaml:"name"`
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	SlowMo         time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	Locale         string        `mapstructure:"locale" yaml:"locale"`
	Timezone       string        `mapstructure:"timezone" yaml:"timezone"`
}

// TimeoutConfig bounds page operations and waits.
type TimeoutConfig struct {
	Default      time.Duration `mapstructure:"default" yaml:"default"`
	Navigation   time.Duration `mapstructure:"navigation" yaml:"navigation"`
	Action       time.Duration `mapstructure:"action" yaml:"action"`
	Login        time.Duration `mapstructure:"login" yaml:"login"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// RetryConfig is the default policy for transient interaction failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
}

// OutputConfig locates run output. Worker, when set, namespaces every file.
type OutputConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Worker string `mapstructure:"worker" yaml:"worker"`
}

// LoggingConfig sets sink levels and the failure excerpt size.
type LoggingConfig struct {
	ConsoleLevel string `mapstructure:"console_level" yaml:"console_level"`
	FileLevel    string `mapstructure:"file_level" yaml:"file_level"`
	ExcerptLines int    `mapstructure:"excerpt_lines" yaml:"excerpt_lines"`
}

// ArtifactConfig selects the evidence captured for failed tests.
type ArtifactConfig struct {
	Screenshots bool `mapstructure:"screenshots" yaml:"screenshots"`
	Traces      bool `mapstructure:"traces" yaml:"traces"`
	DOM         bool `mapstructure:"dom" yaml:"dom"`
	// TraceTests are glob patterns over test ids; only matching failures keep a trace.
	TraceTests []string `mapstructure:"trace_tests" yaml:"trace_tests"`
}

// DefaultConfig returns the development configuration without credentials.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		BaseURL:     environmentURLs[EnvDevelopment],
		Browser: BrowserConfig{
			Name:           "chromium",
			Headless:       false,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Locale:         "en-US",
			Timezone:       "Asia/Singapore",
		},
		Timeouts: TimeoutConfig{
			Default:      30 * time.Second,
			Navigation:   30 * time.Second,
			Action:       10 * time.Second,
			Login:        45 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       time.Second,
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Logging: LoggingConfig{
			ConsoleLevel: "info",
			FileLevel:    "debug",
			ExcerptLines: 50,
		},
		Artifacts: ArtifactConfig{
			Screenshots: true,
			Traces:      true,
			DOM:         true,
			TraceTests:  []string{"*"},
		},
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration. Credentials are not required here: the
// commands and suites that log in check them with RequireCredentials.
func (c *Config) Validate() error {
	if _, ok := environmentURLs[c.Environment]; !ok {
		return fmt.Errorf("invalid environment: %s (must be 'development', 'staging' or 'production')", c.Environment)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("invalid base URL %q: must start with http:// or https://", c.BaseURL)
	}

	switch c.Browser.Name {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("invalid browser: %s (must be 'chromium', 'firefox' or 'webkit')", c.Browser.Name)
	}
	if c.Browser.SlowMo < 0 {
		return fmt.Errorf("slow_mo cannot be negative")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}

	timeouts := map[string]time.Duration{
		"default":       c.Timeouts.Default,
		"navigation":    c.Timeouts.Navigation,
		"action":        c.Timeouts.Action,
		"login":         c.Timeouts.Login,
		"poll_interval": c.Timeouts.PollInterval,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("timeout %s must be positive", name)
		}
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	if !validLevels[c.Logging.ConsoleLevel] {
		return fmt.Errorf("invalid console log level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Logging.ConsoleLevel)
	}
	if !validLevels[c.Logging.FileLevel] {
		return fmt.Errorf("invalid file log level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Logging.FileLevel)
	}
	if c.Logging.ExcerptLines < 0 {
		return fmt.Errorf("excerpt_lines cannot be negative")
	}

	if _, err := c.TraceMatcher(); err != nil {
		return err
	}
	if strings.ContainsAny(c.Output.Worker, `/\`) {
		return fmt.Errorf("invalid worker id %q", c.Output.Worker)
	}
	return nil
}

// RequireCredentials reports missing AQX_USERNAME / AQX_PASSWORD.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Username == "" {
		missing = append(missing, "AQX_USERNAME")
	}
	if c.Password == "" {
		missing = append(missing, "AQX_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Password != "" {
		out.Password = "********"
	}
	out.Artifacts.TraceTests = append([]string(nil), c.Artifacts.TraceTests...)
	return &out
}

// TraceMatcher compiles TraceTests into a single matcher.
func (c *Config) TraceMatcher() (glob.Glob, error) {
	patterns := c.Artifacts.TraceTests
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	var compiled []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trace_tests pattern %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}
	return anyGlob(compiled), nil
}

type anyGlob []glob.Glob

func (a anyGlob) Match(s string) bool {
	for _, g := range a {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Paths are the per-kind output directories of a worker.
type Paths struct {
	Logs        string
	Screenshots string
	Traces      string
	DOM         string
	Reports     string
	Failures    string
}

// Paths returns the output directories. Logs are shared and worker-suffixed by
// file name; artifacts are nested under the worker id.
func (c *Config) Paths() Paths {
	root := c.Output.Dir
	if root == "" {
		root = "."
	}
	artifacts := root
	if c.Output.Worker != "" {
		artifacts = filepath.Join(root, c.Output.Worker)
	}
	return Paths{
		Logs:        filepath.Join(root, "logs"),
		Screenshots: filepath.Join(artifacts, "screenshots"),
		Traces:      filepath.Join(artifacts, "traces"),
		DOM:         filepath.Join(artifacts, "dom"),
		Reports:     filepath.Join(root, "reports"),
		Failures:    filepath.Join(artifacts, "reports", "failures"),
	}
}

// EnsureDirs creates every output directory.
func (c *Config) EnsureDirs() error {
	p := c.Paths()
	for _, dir := range []string{p.Logs, p.Screenshots, p.Traces, p.DOM, p.Reports, p.Failures} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
