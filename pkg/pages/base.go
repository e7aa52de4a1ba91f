// Package pages contains the page objects of the trading web app: login,
// trade panel and assets. They wrap a single playwright.Page; every wait goes
// through wait.Poller and every interaction through retry.Executor, with
// engine errors classified by browser.Classify before a retry decision.
package pages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/aqx-uitest/pkg/browser"
	"github.com/entrhq/aqx-uitest/pkg/config"
	"github.com/entrhq/aqx-uitest/pkg/failure"
	"github.com/entrhq/aqx-uitest/pkg/retry"
	"github.com/entrhq/aqx-uitest/pkg/wait"
)

// Logger receives page-level progress.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}

// Deps are shared by every page object of a worker.
type Deps struct {
	BaseURL           string
	Poller            *wait.Poller
	Retrier           *retry.Executor
	Policy            retry.Policy
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	Log               Logger
}

// DepsFromConfig wires cfg's timing and retry policy to poller and retrier.
func DepsFromConfig(cfg *config.Config, poller *wait.Poller, retrier *retry.Executor, log Logger) Deps {
	return Deps{
		BaseURL:           cfg.BaseURL,
		Poller:            poller,
		Retrier:           retrier,
		Policy:            retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay},
		ActionTimeout:     cfg.Timeouts.Action,
		NavigationTimeout: cfg.Timeouts.Navigation,
		Log:               log,
	}
}

// New binds the dependencies to page.
func (d Deps) New(page playwright.Page) *Base {
	if d.Poller == nil {
		d.Poller = wait.NewPoller()
	}
	if d.Retrier == nil {
		d.Retrier = retry.NewExecutor()
	}
	if d.Policy.MaxAttempts == 0 {
		d.Policy = retry.DefaultPolicy
	}
	if d.ActionTimeout <= 0 {
		d.ActionTimeout = wait.DefaultTimeout
	}
	if d.NavigationTimeout <= 0 {
		d.NavigationTimeout = browser.DefaultTimeout
	}
	if d.Log == nil {
		d.Log = nopLogger{}
	}
	return &Base{Deps: d, Page: page}
}

// Base holds the interactions every page object shares.
type Base struct {
	Deps
	Page playwright.Page
}

// Navigate opens url, or the base URL when url is empty, and waits for load.
func (b *Base) Navigate(url string) error {
	if url == "" {
		url = b.BaseURL
	}
	waitUntil := playwright.WaitUntilState("load")
	_, err := b.Page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   playwright.Float(millis(b.NavigationTimeout)),
	})
	if err != nil {
		return browser.Classify("navigate to "+url, err)
	}
	b.Log.Debugf("navigated to %s", url)
	return nil
}

// ByTestID locates an element by its data-testid.
func (b *Base) ByTestID(id string) playwright.Locator {
	return b.Page.GetByTestId(id)
}

// ByText locates an element by its exact visible text.
func (b *Base) ByText(text string) playwright.Locator {
	return b.Page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)})
}

// Click clicks loc, retrying transient failures under the retry policy.
func (b *Base) Click(name string, loc playwright.Locator) error {
	timeout := millis(b.ActionTimeout)
	return b.Retrier.Do("click "+name, b.Policy, func() error {
		return browser.Classify("click "+name, loc.Click(playwright.LocatorClickOptions{Timeout: &timeout}))
	})
}

// ClickWhenEnabled waits for loc to be enabled, then clicks it.
func (b *Base) ClickWhenEnabled(name string, loc playwright.Locator) error {
	if err := b.WaitEnabled(name, loc); err != nil {
		return err
	}
	return b.Click(name, loc)
}

// Fill replaces the value of an input, retrying transient failures.
func (b *Base) Fill(name string, loc playwright.Locator, value string) error {
	timeout := millis(b.ActionTimeout)
	return b.Retrier.Do("fill "+name, b.Policy, func() error {
		return browser.Classify("fill "+name, loc.Fill(value, playwright.LocatorFillOptions{Timeout: &timeout}))
	})
}

// WaitVisible polls until loc is visible or the action timeout passes.
func (b *Base) WaitVisible(name string, loc playwright.Locator) error {
	return b.WaitVisibleWithin(name, loc, b.ActionTimeout)
}

// WaitVisibleWithin is WaitVisible with an explicit timeout.
func (b *Base) WaitVisibleWithin(name string, loc playwright.Locator, timeout time.Duration) error {
	return b.Poller.Until(wait.Condition{
		Name: name + " visible",
		Predicate: func() (bool, error) {
			ok, err := loc.IsVisible()
			return ok, browser.Classify("visible "+name, err)
		},
		Timeout: timeout,
	})
}

// WaitEnabled polls until loc is enabled.
func (b *Base) WaitEnabled(name string, loc playwright.Locator) error {
	return b.Poller.Until(wait.Condition{
		Name: name + " enabled",
		Predicate: func() (bool, error) {
			ok, err := loc.IsEnabled()
			return ok, browser.Classify("enabled "+name, err)
		},
		Timeout: b.ActionTimeout,
	})
}

// IsVisible reports whether loc becomes visible within timeout. Only a
// timeout counts as "no"; other errors are returned.
func (b *Base) IsVisible(name string, loc playwright.Locator, timeout time.Duration) (bool, error) {
	err := b.WaitVisibleWithin(name, loc, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, failure.ErrTimedOut):
		return false, nil
	default:
		return false, err
	}
}

// TextOf reads the text content of loc.
func (b *Base) TextOf(name string, loc playwright.Locator) wait.Reader {
	return func() (string, error) {
		s, err := loc.TextContent()
		return s, browser.Classify("read "+name, err)
	}
}

// ValueOf reads the value of the input loc.
func (b *Base) ValueOf(name string, loc playwright.Locator) wait.Reader {
	return func() (string, error) {
		s, err := loc.InputValue()
		return s, browser.Classify("read "+name, err)
	}
}

// CountOf counts the elements matching loc.
func (b *Base) CountOf(name string, loc playwright.Locator) wait.Counter {
	return func() (int, error) {
		n, err := loc.Count()
		return n, browser.Classify("count "+name, err)
	}
}

// NumericText waits for loc's text to be a complete number.
func (b *Base) NumericText(name string, loc playwright.Locator) (float64, error) {
	return b.Poller.Numeric(name, b.TextOf(name, loc), b.ActionTimeout, 0)
}

// NumericValue waits for the input loc to hold a complete number.
func (b *Base) NumericValue(name string, loc playwright.Locator) (float64, error) {
	return b.Poller.Numeric(name, b.ValueOf(name, loc), b.ActionTimeout, 0)
}

// WaitText waits until loc's text, trimmed, equals want.
func (b *Base) WaitText(name string, loc playwright.Locator, want string) error {
	return b.Poller.Text(name, b.TextOf(name, loc), want, b.ActionTimeout, 0)
}

// WaitTextContains waits until loc's text contains want.
func (b *Base) WaitTextContains(name string, loc playwright.Locator, want string, timeout time.Duration) error {
	_, err := b.Poller.Value(name, b.TextOf(name, loc), func(v string) bool {
		return strings.Contains(v, want)
	}, timeout, 0)
	return err
}

// Screenshot saves the visible page to path.
func (b *Base) Screenshot(path string) error {
	if _, err := b.Page.Screenshot(playwright.PageScreenshotOptions{Path: &path}); err != nil {
		return fmt.Errorf("screenshot %s: %w", path, err)
	}
	return nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
