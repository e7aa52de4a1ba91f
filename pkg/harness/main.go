package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/entrhq/aqx-uitest/pkg/failure"
)

// Exit codes of RunMain besides m.Run's own.
const (
	ExitSetup = 2
	ExitAuth  = 3
)

// Runner is satisfied by *testing.M.
type Runner interface {
	Run() int
}

var (
	currentMu sync.Mutex
	current   *Suite
)

// Current returns the suite installed by RunMain, or nil outside it.
func Current() *Suite {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

func setCurrent(s *Suite) {
	currentMu.Lock()
	current = s
	currentMu.Unlock()
}

// Run runs body against the current suite; see Suite.Run.
func Run(t T, body func(*Case) error) {
	t.Helper()
	s := Current()
	if s == nil {
		t.Errorf("harness.Run called without harness.Main in TestMain")
		t.FailNow()
		return
	}
	s.Run(t, body)
}

// Main is RunMain followed by os.Exit.
func Main(m Runner, opts Options) {
	os.Exit(RunMain(m, opts))
}

// RunMain builds the suite, logs in and runs m. Without credentials (and no
// custom Authenticator) the tests are skipped and 0 returned. A failed login
// returns ExitAuth without running any test.
func RunMain(m Runner, opts Options) int {
	s, err := New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "harness setup failed: %v\n", err)
		return ExitSetup
	}
	if opts.Authenticator == nil {
		if err := s.cfg.RequireCredentials(); err != nil {
			s.log.Warn("skipping UI tests", "reason", err)
			_ = s.closeLogs()
			return 0
		}
	}

	if err := s.BeforeSession(context.Background()); err != nil {
		_ = s.AfterSession()
		if errors.Is(err, failure.ErrAuthentication) {
			return ExitAuth
		}
		return ExitSetup
	}

	setCurrent(s)
	defer setCurrent(nil)

	code := m.Run()
	if err := s.AfterSession(); err != nil && code == 0 {
		s.log.Error("teardown failed", "err", err)
	}
	return code
}
