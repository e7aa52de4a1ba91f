// Package harness ties the session manager, page objects and failure
// artifacts into Go tests.
//
// One Suite exists per worker process. RunMain (or Main) builds it from the
// environment, logs in once before any test runs and tears everything down
// after m.Run:
//
//	func TestMain(m *testing.M) { harness.Main(m, harness.Options{}) }
//
//	func TestMarketOrder(t *testing.T) {
//		harness.Run(t, func(c *harness.Case) error {
//			return c.Trading.PlaceOrder(...)
//		})
//	}
//
// Tests share the session sequentially. A second test started while one is
// still running fails immediately instead of racing on the page.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/aqx-uitest/pkg/artifact"
	"github.com/entrhq/aqx-uitest/pkg/browser"
	"github.com/entrhq/aqx-uitest/pkg/config"
	"github.com/entrhq/aqx-uitest/pkg/logging"
	"github.com/entrhq/aqx-uitest/pkg/metrics"
	"github.com/entrhq/aqx-uitest/pkg/pages"
	"github.com/entrhq/aqx-uitest/pkg/retry"
	"github.com/entrhq/aqx-uitest/pkg/wait"
)

// ErrConcurrentTest is reported when a test starts while another one still
// holds the session.
var ErrConcurrentTest = errors.New("another test is using the session")

// Options configure a Suite. Zero values are filled from the environment.
type Options struct {
	// Config defaults to config.Load with the process environment.
	Config *config.Config
	// Logs defaults to the process-wide registry, which the suite then
	// shuts down in AfterSession.
	Logs *logging.Registry
	// Launcher defaults to a Playwright launcher built from Config.
	Launcher browser.Launcher
	// Authenticator defaults to the login page with Config's credentials.
	Authenticator browser.Authenticator
	// Clock drives polling, retries and artifact names. Defaults to the real clock.
	Clock wait.Clock
	// Console overrides the console sink of a registry created by the suite.
	Console io.Writer
}

// Suite is the per-worker lifecycle: BeforeSession, then BeforeTest and
// AfterTest around every test, then AfterSession.
type Suite struct {
	cfg       *config.Config
	logs      *logging.Registry
	ownsLogs  bool
	log       *logging.Logger
	clock     wait.Clock
	metrics   *metrics.Metrics
	poller    *wait.Poller
	retrier   *retry.Executor
	deps      pages.Deps
	manager   *browser.SessionManager
	collector *artifact.Collector
	started   time.Time

	running atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// New wires a suite without touching the browser.
func New(opts Options) (*Suite, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(config.LoadOptions{}); err != nil {
			return nil, err
		}
	}

	logs := opts.Logs
	ownsLogs := false
	if logs == nil {
		var err error
		logs, err = logging.Init(logging.Options{
			Dir:          cfg.Paths().Logs,
			Worker:       cfg.Output.Worker,
			ConsoleLevel: cfg.Logging.ConsoleLevel,
			FileLevel:    cfg.Logging.FileLevel,
			Console:      opts.Console,
		})
		if logs == nil {
			return nil, fmt.Errorf("init logging: %w", err)
		}
		ownsLogs = true
	}

	clock := opts.Clock
	if clock == nil {
		clock = wait.RealClock{}
	}

	s := &Suite{
		cfg:      cfg,
		logs:     logs,
		ownsLogs: ownsLogs,
		log:      logs.Get("harness"),
		clock:    clock,
		metrics:  metrics.New(),
	}
	s.poller = wait.NewPoller(
		wait.WithClock(clock),
		wait.WithDefaults(cfg.Timeouts.Action, cfg.Timeouts.PollInterval),
		wait.WithObserver(s.metrics),
		wait.WithLogger(logs.Get("wait")),
	)
	s.retrier = retry.NewExecutor(
		retry.WithClock(clock),
		retry.WithObserver(s.metrics),
		retry.WithLogger(logs.Get("retry")),
	)
	s.deps = pages.DepsFromConfig(cfg, s.poller, s.retrier, logs.Get("pages"))

	launcher := opts.Launcher
	if launcher == nil {
		launcher = browser.NewPlaywrightLauncher(launchOptions(cfg))
	}
	auth := opts.Authenticator
	if auth == nil {
		auth = pages.Authenticator(s.deps, pages.Credentials{
			Username:    cfg.Username,
			Password:    cfg.Password,
			DisplayName: cfg.DisplayName,
		})
	}
	s.manager = browser.NewSessionManager(launcher, auth, browser.ManagerOptions{
		LoginURL:     cfg.BaseURL,
		LoginTimeout: cfg.Timeouts.Login,
		Logger:       logs.Get("session"),
	})

	artifactOpts, err := artifact.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	artifactOpts.RunID = logs.RunID()
	artifactOpts.Logger = logs.Get("artifact")
	artifactOpts.Excerpts = logs
	artifactOpts.Recorder = s.metrics
	artifactOpts.Now = clock.Now
	s.collector = artifact.NewCollector(artifactOpts)

	return s, nil
}

func launchOptions(cfg *config.Config) browser.LaunchOptions {
	name := cfg.Output.Worker
	if name == "" {
		name = "main"
	}
	return browser.LaunchOptions{
		Name:              name,
		Browser:           cfg.Browser.Name,
		Headless:          cfg.Browser.Headless,
		SlowMo:            cfg.Browser.SlowMo,
		Viewport:          browser.Viewport{Width: cfg.Browser.ViewportWidth, Height: cfg.Browser.ViewportHeight},
		Locale:            cfg.Browser.Locale,
		Timezone:          cfg.Browser.Timezone,
		DefaultTimeout:    cfg.Timeouts.Default,
		NavigationTimeout: cfg.Timeouts.Navigation,
		Trace:             cfg.Artifacts.Traces,
	}
}

// Config returns the effective configuration.
func (s *Suite) Config() *config.Config { return s.cfg }

// Metrics returns the suite's counters.
func (s *Suite) Metrics() *metrics.Metrics { return s.metrics }

// Collector returns the failure-artifact hook.
func (s *Suite) Collector() *artifact.Collector { return s.collector }

// State is the session manager's lifecycle state.
func (s *Suite) State() browser.State { return s.manager.State() }

// BeforeSession prepares the output directories and logs in. An
// authentication failure here means no test can run.
func (s *Suite) BeforeSession(ctx context.Context) error {
	s.started = s.clock.Now()
	if err := s.cfg.EnsureDirs(); err != nil {
		return err
	}
	s.log.Info("starting session",
		"env", s.cfg.Environment,
		"url", s.cfg.BaseURL,
		"browser", s.cfg.Browser.Name,
		"headless", s.cfg.Browser.Headless,
	)
	if _, err := s.manager.Acquire(ctx); err != nil {
		s.metrics.SessionFailed()
		s.log.Error("session setup failed", "err", err)
		return err
	}
	return nil
}

// BeforeTest claims the session for id and starts evidence collection. It
// fails with ErrConcurrentTest while another test is running.
func (s *Suite) BeforeTest(ctx context.Context, id string) (*Case, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", ErrConcurrentTest, id)
	}
	session, err := s.manager.Acquire(ctx)
	if err != nil {
		s.running.Store(false)
		return nil, err
	}

	s.log.Info("==================== STARTING TEST ====================", "test", id)
	s.collector.BeforeTest(id, session)

	base := s.deps.New(session.Page)
	return &Case{
		ID:      id,
		Started: s.clock.Now(),
		Session: session,
		Config:  s.cfg,
		Log:     s.logs.Get(id),
		Poller:  s.poller,
		Retrier: s.retrier,
		Clock:   s.clock,
		Login:   pages.NewLoginPage(base),
		Trading: pages.NewTradingPage(base),
		Assets:  pages.NewAssetsPage(base),
	}, nil
}

// AfterTest records the outcome of c, saving evidence when err is non-nil,
// and releases the session for the next test.
func (s *Suite) AfterTest(c *Case, err error) *artifact.TestOutcome {
	defer s.running.Store(false)

	outcome := &artifact.TestOutcome{
		TestID:   c.ID,
		Verdict:  artifact.VerdictFor(err),
		Err:      err,
		Started:  c.Started,
		Finished: s.clock.Now(),
	}
	if werr := s.collector.AfterTest(outcome); werr != nil {
		s.log.Debug("failure evidence incomplete", "test", c.ID, "err", werr)
	}
	s.metrics.TestFinished(string(outcome.Verdict), outcome.Duration())
	s.log.Info("==================== FINISHED TEST ====================",
		"test", c.ID, "verdict", outcome.Verdict, "duration", outcome.Duration())
	return outcome
}

// AfterSession releases the browser and writes the metrics textfile and the
// run summary. It runs once; later calls return the first result.
func (s *Suite) AfterSession() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.manager.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release session: %w", err))
		}

		reports := s.cfg.Paths().Reports
		if path, err := s.metrics.WriteTextfile(reports, s.cfg.Output.Worker); err != nil {
			errs = append(errs, err)
		} else {
			s.log.Debug("metrics written", "path", path)
		}

		summary := s.collector.Summary(s.started)
		if err := artifact.WriteSummary(reports, summary); err != nil {
			errs = append(errs, err)
		}
		s.log.Info("session finished",
			"passed", summary.Passed,
			"failed", summary.Failed,
			"errored", summary.Errored,
			"duration", summary.Duration,
		)

		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.log.Warn("teardown incomplete", "err", s.closeErr)
		}
		if err := s.closeLogs(); err != nil {
			s.closeErr = errors.Join(s.closeErr, err)
		}
	})
	return s.closeErr
}

func (s *Suite) closeLogs() error {
	if !s.ownsLogs {
		return nil
	}
	return logging.Shutdown()
}
