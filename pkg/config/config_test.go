package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Getenv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "https://aqxtrader.aquariux.com", cfg.BaseURL)
	assert.Equal(t, "chromium", cfg.Browser.Name)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, "Asia/Singapore", cfg.Browser.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Default)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Action)
	assert.Equal(t, 100*time.Millisecond, cfg.Timeouts.PollInterval)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, []string{"*"}, cfg.Artifacts.TraceTests)
	assert.Empty(t, cfg.Username)
	assert.Error(t, cfg.RequireCredentials())
}

func TestLoad_Environment(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantURL string
		wantEnv Environment
	}{
		{
			name:    "staging default",
			env:     map[string]string{"TEST_ENV": "staging"},
			wantURL: "https://staging.aqxtrader.aquariux.com",
			wantEnv: EnvStaging,
		},
		{
			name:    "staging override",
			env:     map[string]string{"TEST_ENV": "Staging", "STAGING_URL": "https://stg.example.com/"},
			wantURL: "https://stg.example.com",
			wantEnv: EnvStaging,
		},
		{
			name:    "production override",
			env:     map[string]string{"TEST_ENV": "production", "PROD_URL": "https://prod.example.com"},
			wantURL: "https://prod.example.com",
			wantEnv: EnvProduction,
		},
		{
			name:    "base url wins",
			env:     map[string]string{"TEST_ENV": "staging", "STAGING_URL": "https://stg.example.com", "BASE_URL": "http://localhost:3000"},
			wantURL: "http://localhost:3000",
			wantEnv: EnvStaging,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(LoadOptions{Getenv: envMap(tt.env)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnv, cfg.Environment)
			assert.Equal(t, tt.wantURL, cfg.BaseURL)
		})
	}
}

func TestLoad_UnknownEnvironment(t *testing.T) {
	_, err := Load(LoadOptions{Getenv: envMap(map[string]string{"TEST_ENV": "qa"})})
	assert.ErrorContains(t, err, "invalid environment")
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := Load(LoadOptions{Getenv: envMap(map[string]string{
		"AQX_USERNAME":       "1000370",
		"AQX_PASSWORD":       "secret",
		"BROWSER":            "firefox",
		"HEADLESS":           "True",
		"SLOW_MO":            "250",
		"ACTION_TIMEOUT":     "5000",
		"POLL_INTERVAL":      "50",
		"MAX_RETRIES":        "5",
		"RETRY_DELAY":        "200",
		"E2E_WORKER":         "gw2",
		"LOG_LEVEL":          "DEBUG",
		"TRACE_ON_FAILURE":   "false",
		"TRACE_TESTS":        "TestMarket*, TestStop*",
		"LOG_EXCERPT_LINES":  "20",
		"NAVIGATION_TIMEOUT": "60000",
	})})
	require.NoError(t, err)

	assert.NoError(t, cfg.RequireCredentials())
	assert.Equal(t, "firefox", cfg.Browser.Name)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.Browser.SlowMo)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Action)
	assert.Equal(t, time.Minute, cfg.Timeouts.Navigation)
	assert.Equal(t, 50*time.Millisecond, cfg.Timeouts.PollInterval)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, "gw2", cfg.Output.Worker)
	assert.Equal(t, "debug", cfg.Logging.ConsoleLevel)
	assert.Equal(t, 20, cfg.Logging.ExcerptLines)
	assert.False(t, cfg.Artifacts.Traces)
	assert.Equal(t, []string{"TestMarket*", "TestStop*"}, cfg.Artifacts.TraceTests)
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad bool":     {"HEADLESS": "maybe"},
		"bad millis":   {"ACTION_TIMEOUT": "10s"},
		"bad int":      {"MAX_RETRIES": "three"},
		"bad browser":  {"BROWSER": "opera"},
		"bad level":    {"LOG_LEVEL": "verbose"},
		"zero retries": {"MAX_RETRIES": "0"},
		"bad glob":     {"TRACE_TESTS": "Test[abc"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(LoadOptions{Getenv: envMap(env)})
			assert.Error(t, err)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e2e.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: staging
browser:
  headless: true
  name: webkit
timeouts:
  action: 15s
retry:
  max_attempts: 4
artifacts:
  trace_tests: ["TestPosition*"]
`), 0600))

	cfg, err := Load(LoadOptions{Getenv: envMap(map[string]string{"E2E_CONFIG": path, "BROWSER": "chromium"})})
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, "https://staging.aqxtrader.aquariux.com", cfg.BaseURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "chromium", cfg.Browser.Name, "env beats file")
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Action)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Navigation)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, []string{"TestPosition*"}, cfg.Artifacts.TraceTests)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Getenv: envMap(nil)})
	assert.ErrorContains(t, err, "not found")
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(LoadOptions{
		Getenv:    envMap(map[string]string{"BROWSER": "firefox"}),
		Overrides: map[string]any{"browser.name": "webkit"},
	})
	require.NoError(t, err)
	assert.Equal(t, "webkit", cfg.Browser.Name)
}

func TestConfig_Redacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Username = "1000370"
	cfg.Password = "secret"

	red := cfg.Redacted()

	assert.Equal(t, "********", red.Password)
	assert.Equal(t, "1000370", red.Username)
	assert.Equal(t, "secret", cfg.Password)
}

func TestConfig_TraceMatcher(t *testing.T) {
	cfg := DefaultConfig()
	m, err := cfg.TraceMatcher()
	require.NoError(t, err)
	assert.True(t, m.Match("TestMarketOrder/buy_with_sl"))

	cfg.Artifacts.TraceTests = []string{"TestStop*", "TestPosition*"}
	m, err = cfg.TraceMatcher()
	require.NoError(t, err)
	assert.True(t, m.Match("TestStopOrder"))
	assert.True(t, m.Match("TestPositionClose/partial"))
	assert.False(t, m.Match("TestMarketOrder"))
}

func TestConfig_PathsAndEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output.Dir = root
	cfg.Output.Worker = "gw0"

	p := cfg.Paths()
	assert.Equal(t, filepath.Join(root, "logs"), p.Logs)
	assert.Equal(t, filepath.Join(root, "gw0", "screenshots"), p.Screenshots)
	assert.Equal(t, filepath.Join(root, "gw0", "traces"), p.Traces)
	assert.Equal(t, filepath.Join(root, "gw0", "reports", "failures"), p.Failures)
	assert.Equal(t, filepath.Join(root, "reports"), p.Reports)

	require.NoError(t, cfg.EnsureDirs())
	for _, dir := range []string{p.Logs, p.Screenshots, p.Traces, p.DOM, p.Reports, p.Failures} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(*Config) {}},
		{name: "bad url", mutate: func(c *Config) { c.BaseURL = "aqxtrader.aquariux.com" }, wantErr: "invalid base URL"},
		{name: "empty url", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: "base URL is required"},
		{name: "negative slow mo", mutate: func(c *Config) { c.Browser.SlowMo = -1 }, wantErr: "slow_mo"},
		{name: "zero viewport", mutate: func(c *Config) { c.Browser.ViewportWidth = 0 }, wantErr: "viewport"},
		{name: "zero login timeout", mutate: func(c *Config) { c.Timeouts.Login = 0 }, wantErr: "timeout login"},
		{name: "negative delay", mutate: func(c *Config) { c.Retry.Delay = -time.Second }, wantErr: "retry delay"},
		{name: "bad file level", mutate: func(c *Config) { c.Logging.FileLevel = "trace" }, wantErr: "file log level"},
		{name: "worker with slash", mutate: func(c *Config) { c.Output.Worker = "a/b" }, wantErr: "worker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
