package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/entrhq/aqx-uitest/pkg/artifact"
	"github.com/entrhq/aqx-uitest/pkg/browser"
	"github.com/entrhq/aqx-uitest/pkg/config"
	"github.com/entrhq/aqx-uitest/pkg/logging"
	"github.com/entrhq/aqx-uitest/pkg/pages"
	"github.com/entrhq/aqx-uitest/pkg/retry"
	"github.com/entrhq/aqx-uitest/pkg/wait"
)

// Case is what a test body gets: the shared session, page objects bound to
// it and the worker's wait and retry machinery.
type Case struct {
	ID      string
	Started time.Time

	Session *browser.Session
	Config  *config.Config
	Log     *logging.Logger
	Poller  *wait.Poller
	Retrier *retry.Executor
	Clock   wait.Clock

	Login   *pages.LoginPage
	Trading *pages.TradingPage
	Assets  *pages.AssetsPage
}

// Now is the suite clock's current time.
func (c *Case) Now() time.Time { return c.Clock.Now() }

// T is the part of testing.TB the harness needs.
type T interface {
	Name() string
	Helper()
	Errorf(format string, args ...any)
	FailNow()
	Failed() bool
}

// Run executes body as the test t against the suite's session. A returned
// error or a panic fails t after the failure evidence has been saved.
func (s *Suite) Run(t T, body func(*Case) error) *artifact.TestOutcome {
	t.Helper()

	c, err := s.BeforeTest(context.Background(), t.Name())
	if err != nil {
		t.Errorf("%s: %v", t.Name(), err)
		t.FailNow()
		return nil
	}

	returned := false
	defer func() {
		if returned {
			return
		}
		// body left through runtime.Goexit: t.Skip, t.FailNow or t.Fatal.
		var stopped error
		if t.Failed() {
			stopped = errStopped
		}
		s.AfterTest(c, stopped)
	}()

	err = runBody(c, body)
	returned = true
	outcome := s.AfterTest(c, err)
	if err != nil {
		t.Errorf("%s: %v", c.ID, err)
		if outcome.Artifacts.Record != "" {
			t.Errorf("failure record: %s", outcome.Artifacts.Record)
		}
		t.FailNow()
	}
	return outcome
}

var errStopped = errors.New("test body stopped by t.FailNow or t.Fatal")

func runBody(c *Case, body func(*Case) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return body(c)
}
