package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigPath is an optional YAML file. Defaults to $E2E_CONFIG.
	ConfigPath string
	// Getenv replaces os.Getenv, mainly for tests.
	Getenv func(string) string
	// Overrides are highest-priority values keyed by dot-notated config keys.
	Overrides map[string]any
}

// Load returns the effective configuration after applying precedence:
// defaults < config file < environment < overrides. The result is validated.
func Load(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	v := viper.New()
	setDefaults(v)

	path := opts.ConfigPath
	if path == "" {
		path = getenv("E2E_CONFIG")
	}
	if err := mergeConfigFile(v, path); err != nil {
		return nil, err
	}

	if err := applyEnvironment(v, getenv); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(v, getenv); err != nil {
		return nil, err
	}
	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Logging.ConsoleLevel = strings.ToLower(cfg.Logging.ConsoleLevel)
	cfg.Logging.FileLevel = strings.ToLower(cfg.Logging.FileLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("environment", string(def.Environment))
	v.SetDefault("base_url", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("display_name", "")

	v.SetDefault("browser.name", def.Browser.Name)
	v.SetDefault("browser.headless", def.Browser.Headless)
	v.SetDefault("browser.slow_mo", def.Browser.SlowMo)
	v.SetDefault("browser.viewport_width", def.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", def.Browser.ViewportHeight)
	v.SetDefault("browser.locale", def.Browser.Locale)
	v.SetDefault("browser.timezone", def.Browser.Timezone)

	v.SetDefault("timeouts.default", def.Timeouts.Default)
	v.SetDefault("timeouts.navigation", def.Timeouts.Navigation)
	v.SetDefault("timeouts.action", def.Timeouts.Action)
	v.SetDefault("timeouts.login", def.Timeouts.Login)
	v.SetDefault("timeouts.poll_interval", def.Timeouts.PollInterval)

	v.SetDefault("retry.max_attempts", def.Retry.MaxAttempts)
	v.SetDefault("retry.delay", def.Retry.Delay)

	v.SetDefault("output.dir", def.Output.Dir)
	v.SetDefault("output.worker", def.Output.Worker)

	v.SetDefault("logging.console_level", def.Logging.ConsoleLevel)
	v.SetDefault("logging.file_level", def.Logging.FileLevel)
	v.SetDefault("logging.excerpt_lines", def.Logging.ExcerptLines)

	v.SetDefault("artifacts.screenshots", def.Artifacts.Screenshots)
	v.SetDefault("artifacts.traces", def.Artifacts.Traces)
	v.SetDefault("artifacts.dom", def.Artifacts.DOM)
	v.SetDefault("artifacts.trace_tests", def.Artifacts.TraceTests)
}

// mergeConfigFile merges the YAML config file. A path that is set but missing
// is an error; an empty path is not.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

// applyEnvironment resolves TEST_ENV and the base URL of the selected
// deployment. BASE_URL wins over the per-environment URL.
func applyEnvironment(v *viper.Viper, getenv func(string) string) error {
	env := Environment(strings.ToLower(v.GetString("environment")))
	if raw := getenv("TEST_ENV"); raw != "" {
		env = Environment(strings.ToLower(strings.TrimSpace(raw)))
	}
	v.Set("environment", string(env))

	if v.GetString("base_url") != "" && getenv("BASE_URL") == "" {
		return nil
	}

	url := environmentURLs[env]
	switch env {
	case EnvStaging:
		if s := getenv("STAGING_URL"); s != "" {
			url = s
		}
	case EnvProduction:
		if s := getenv("PROD_URL"); s != "" {
			url = s
		}
	}
	if s := getenv("BASE_URL"); s != "" {
		url = s
	}
	v.Set("base_url", strings.TrimRight(url, "/"))
	return nil
}

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindMillis
	kindList
)

type envBinding struct {
	Env  string
	Key  string
	Kind valueKind
}

var envBindings = []envBinding{
	{Env: "AQX_USERNAME", Key: "username", Kind: kindString},
	{Env: "AQX_PASSWORD", Key: "password", Kind: kindString},
	{Env: "AQX_DISPLAY_NAME", Key: "display_name", Kind: kindString},

	{Env: "BROWSER", Key: "browser.name", Kind: kindString},
	{Env: "HEADLESS", Key: "browser.headless", Kind: kindBool},
	{Env: "SLOW_MO", Key: "browser.slow_mo", Kind: kindMillis},

	{Env: "DEFAULT_TIMEOUT", Key: "timeouts.default", Kind: kindMillis},
	{Env: "NAVIGATION_TIMEOUT", Key: "timeouts.navigation", Kind: kindMillis},
	{Env: "ACTION_TIMEOUT", Key: "timeouts.action", Kind: kindMillis},
	{Env: "LOGIN_TIMEOUT", Key: "timeouts.login", Kind: kindMillis},
	{Env: "POLL_INTERVAL", Key: "timeouts.poll_interval", Kind: kindMillis},

	{Env: "MAX_RETRIES", Key: "retry.max_attempts", Kind: kindInt},
	{Env: "RETRY_DELAY", Key: "retry.delay", Kind: kindMillis},

	{Env: "E2E_OUTPUT_DIR", Key: "output.dir", Kind: kindString},
	{Env: "E2E_WORKER", Key: "output.worker", Kind: kindString},

	{Env: "LOG_LEVEL", Key: "logging.console_level", Kind: kindString},
	{Env: "FILE_LOG_LEVEL", Key: "logging.file_level", Kind: kindString},
	{Env: "LOG_EXCERPT_LINES", Key: "logging.excerpt_lines", Kind: kindInt},

	{Env: "SCREENSHOT_ON_FAILURE", Key: "artifacts.screenshots", Kind: kindBool},
	{Env: "TRACE_ON_FAILURE", Key: "artifacts.traces", Kind: kindBool},
	{Env: "DOM_ON_FAILURE", Key: "artifacts.dom", Kind: kindBool},
	{Env: "TRACE_TESTS", Key: "artifacts.trace_tests", Kind: kindList},
}

// EnvVars lists every environment variable Load reads.
func EnvVars() []string {
	out := []string{"E2E_CONFIG", "TEST_ENV", "BASE_URL", "STAGING_URL", "PROD_URL"}
	for _, b := range envBindings {
		out = append(out, b.Env)
	}
	return out
}

func applyEnvOverrides(v *viper.Viper, getenv func(string) string) error {
	for _, binding := range envBindings {
		val := getenv(binding.Env)
		if val == "" {
			continue
		}
		parsed, err := parseValueByKind(val, binding.Kind)
		if err != nil {
			return fmt.Errorf("env %s: %w", binding.Env, err)
		}
		v.Set(binding.Key, parsed)
	}
	return nil
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", raw)
		}
		return b, nil
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", raw)
		}
		return n, nil
	case kindMillis:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid milliseconds %q", raw)
		}
		return time.Duration(n) * time.Millisecond, nil
	case kindList:
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}
