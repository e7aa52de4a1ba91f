package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/aqx-uitest/pkg/artifact"
	"github.com/entrhq/aqx-uitest/pkg/browser"
	"github.com/entrhq/aqx-uitest/pkg/config"
	"github.com/entrhq/aqx-uitest/pkg/failure"
	"github.com/entrhq/aqx-uitest/pkg/logging"
	"github.com/entrhq/aqx-uitest/pkg/wait/waittest"
)

type fakePage struct {
	playwright.Page
	closed bool
}

func (p *fakePage) URL() string { return "https://aqxtrader.aquariux.com/web/trade" }

func (p *fakePage) Screenshot(...playwright.PageScreenshotOptions) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (p *fakePage) Content() (string, error) {
	return `<html><body><div data-testid="trade-live-buy-price">--</div></body></html>`, nil
}

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	stops    int
	page     *fakePage
}

func (l *fakeLauncher) Launch(context.Context) (*browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.page = &fakePage{}
	return &browser.Session{Name: "gw0", Page: l.page}, nil
}

func (l *fakeLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops++
	return nil
}

type fakeT struct {
	name   string
	errors []string
	failed bool
}

func (t *fakeT) Name() string { return t.name }
func (t *fakeT) Helper()      {}

func (t *fakeT) Errorf(format string, args ...any) {
	t.errors = append(t.errors, fmt.Sprintf(format, args...))
}

func (t *fakeT) FailNow()     { t.failed = true }
func (t *fakeT) Failed() bool { return t.failed }

type fakeRunner struct {
	run func() int
	ran bool
}

func (r *fakeRunner) Run() int {
	r.ran = true
	if r.run == nil {
		return 0
	}
	return r.run()
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output.Dir = t.TempDir()
	cfg.Username = "1000370"
	cfg.Password = "secret"
	cfg.Artifacts.Traces = false
	return cfg
}

func testOptions(t *testing.T, cfg *config.Config, launcher browser.Launcher, auth browser.Authenticator) Options {
	logs, err := logging.NewRegistry(logging.Options{Console: &strings.Builder{}})
	require.NoError(t, err)
	return Options{
		Config:        cfg,
		Logs:          logs,
		Launcher:      launcher,
		Authenticator: auth,
		Clock:         waittest.NewFakeClock(),
	}
}

func okAuth(context.Context, *browser.Session) error { return nil }

func TestSuite_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	launcher := &fakeLauncher{}
	s, err := New(testOptions(t, cfg, launcher, okAuth))
	require.NoError(t, err)

	require.NoError(t, s.BeforeSession(context.Background()))
	assert.Equal(t, browser.StateReady, s.State())

	pass := &fakeT{name: "TestMarketOrder"}
	outcome := s.Run(pass, func(c *Case) error {
		assert.Equal(t, "TestMarketOrder", c.ID)
		assert.NotNil(t, c.Trading)
		assert.Same(t, launcher.page, c.Session.Page)
		return nil
	})
	assert.False(t, pass.failed)
	assert.Equal(t, artifact.VerdictPass, outcome.Verdict)

	fail := &fakeT{name: "TestStopOrder"}
	outcome = s.Run(fail, func(c *Case) error {
		return errors.New("buy price never converged")
	})
	assert.True(t, fail.failed)
	assert.Equal(t, artifact.VerdictFail, outcome.Verdict)
	require.NotEmpty(t, fail.errors)
	assert.Contains(t, fail.errors[0], "buy price never converged")

	paths := cfg.Paths()
	assert.FileExists(t, filepath.Join(paths.Screenshots, "TestStopOrder_20251217_084710.png"))
	assert.FileExists(t, filepath.Join(paths.DOM, "TestStopOrder_20251217_084710.html"))
	assert.FileExists(t, outcome.Artifacts.Record)
	assert.Equal(t, 1, launcher.launches, "tests share one session")

	require.NoError(t, s.AfterSession())
	require.NoError(t, s.AfterSession())

	assert.True(t, launcher.page.closed)
	assert.Equal(t, 1, launcher.stops)
	assert.Equal(t, browser.StateClosed, s.State())

	prom, err := os.ReadFile(filepath.Join(paths.Reports, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `aqx_uitest_tests_total{verdict="fail"} 1`)
	assert.Contains(t, string(prom), `aqx_uitest_tests_total{verdict="pass"} 1`)
	assert.FileExists(t, filepath.Join(paths.Reports, "run_summary.json"))
	assert.FileExists(t, filepath.Join(paths.Reports, "summary.md"))
}

func TestSuite_PanicFailsTheTest(t *testing.T) {
	s, err := New(testOptions(t, testConfig(t), &fakeLauncher{}, okAuth))
	require.NoError(t, err)
	defer s.AfterSession()

	ft := &fakeT{name: "TestPartialClose"}
	outcome := s.Run(ft, func(c *Case) error {
		var rows []string
		_ = rows[3]
		return nil
	})

	assert.True(t, ft.failed)
	assert.Equal(t, artifact.VerdictFail, outcome.Verdict)
	assert.ErrorContains(t, outcome.Err, "panic: runtime error: index out of range")

	next := &fakeT{name: "TestAfterPanic"}
	s.Run(next, func(*Case) error { return nil })
	assert.False(t, next.failed, "the session is released after a panic")
}

func TestSuite_GoexitReleasesTheSession(t *testing.T) {
	s, err := New(testOptions(t, testConfig(t), &fakeLauncher{}, okAuth))
	require.NoError(t, err)
	defer s.AfterSession()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(&fakeT{name: "TestSkipped"}, func(*Case) error {
			runtime.Goexit()
			return nil
		})
	}()
	<-done

	next := &fakeT{name: "TestNext"}
	s.Run(next, func(*Case) error { return nil })
	assert.False(t, next.failed, next.errors)

	outcomes := s.Collector().Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, "TestSkipped", outcomes[0].TestID)
	assert.Equal(t, artifact.VerdictPass, outcomes[0].Verdict)
}

func TestSuite_GoexitAfterFailureFailsTheTest(t *testing.T) {
	s, err := New(testOptions(t, testConfig(t), &fakeLauncher{}, okAuth))
	require.NoError(t, err)
	defer s.AfterSession()

	ft := &fakeT{name: "TestFatal"}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ft, func(*Case) error {
			ft.failed = true
			runtime.Goexit()
			return nil
		})
	}()
	<-done

	outcomes := s.Collector().Outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, artifact.VerdictFail, outcomes[0].Verdict)
	assert.ErrorIs(t, outcomes[0].Err, errStopped)
	require.NotEmpty(t, outcomes[0].Artifacts.Record)
	assert.FileExists(t, outcomes[0].Artifacts.Record)

	next := &fakeT{name: "TestNext"}
	s.Run(next, func(*Case) error { return nil })
	assert.False(t, next.failed, next.errors)
}

func TestSuite_RejectsConcurrentTests(t *testing.T) {
	s, err := New(testOptions(t, testConfig(t), &fakeLauncher{}, okAuth))
	require.NoError(t, err)
	defer s.AfterSession()

	first, err := s.BeforeTest(context.Background(), "TestOne")
	require.NoError(t, err)

	_, err = s.BeforeTest(context.Background(), "TestTwo")
	assert.ErrorIs(t, err, ErrConcurrentTest)

	s.AfterTest(first, nil)
	second, err := s.BeforeTest(context.Background(), "TestTwo")
	require.NoError(t, err)
	s.AfterTest(second, nil)
}

func TestSuite_AuthenticationFailureFailsEveryTest(t *testing.T) {
	s, err := New(testOptions(t, testConfig(t), &fakeLauncher{}, func(context.Context, *browser.Session) error {
		return errors.New("welcome announcement never appeared")
	}))
	require.NoError(t, err)
	defer s.AfterSession()

	err = s.BeforeSession(context.Background())
	assert.ErrorIs(t, err, failure.ErrAuthentication)

	ft := &fakeT{name: "TestMarketOrder"}
	called := false
	assert.Nil(t, s.Run(ft, func(*Case) error { called = true; return nil }))
	assert.True(t, ft.failed)
	assert.False(t, called)
}

func TestRunMain(t *testing.T) {
	t.Run("runs tests against the current suite", func(t *testing.T) {
		cfg := testConfig(t)
		ft := &fakeT{name: "TestMarketOrder"}
		runner := &fakeRunner{run: func() int {
			Run(ft, func(c *Case) error { return nil })
			return 0
		}}

		code := RunMain(runner, testOptions(t, cfg, &fakeLauncher{}, okAuth))

		assert.Zero(t, code)
		assert.True(t, runner.ran)
		assert.False(t, ft.failed, ft.errors)
		assert.Nil(t, Current())
		assert.FileExists(t, filepath.Join(cfg.Paths().Reports, "run_summary.json"))
	})

	t.Run("authentication failure stops the run", func(t *testing.T) {
		runner := &fakeRunner{}
		auth := func(context.Context, *browser.Session) error { return errors.New("invalid credentials") }

		code := RunMain(runner, testOptions(t, testConfig(t), &fakeLauncher{}, auth))

		assert.Equal(t, ExitAuth, code)
		assert.False(t, runner.ran)
	})

	t.Run("skips without credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Password = ""
		launcher := &fakeLauncher{}
		runner := &fakeRunner{}

		code := RunMain(runner, testOptions(t, cfg, launcher, nil))

		assert.Zero(t, code)
		assert.False(t, runner.ran)
		assert.Zero(t, launcher.launches)
	})
}

func TestRun_WithoutMain(t *testing.T) {
	ft := &fakeT{name: "TestOrphan"}

	Run(ft, func(*Case) error { return nil })

	assert.True(t, ft.failed)
	assert.Contains(t, ft.errors[0], "harness.Main")
}
