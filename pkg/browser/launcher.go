package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Launcher creates sessions and owns the driver process behind them.
type Launcher interface {
	Launch(ctx context.Context) (*Session, error)
	// Stop shuts the driver down. It is called after the session is closed.
	Stop() error
}

// PlaywrightLauncher launches sessions through the Playwright driver.
type PlaywrightLauncher struct {
	opts LaunchOptions

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightLauncher returns a launcher with defaults applied to opts.
func NewPlaywrightLauncher(opts LaunchOptions) *PlaywrightLauncher {
	if opts.Browser == "" {
		opts.Browser = "chromium"
	}
	if opts.Viewport.Width == 0 || opts.Viewport.Height == 0 {
		opts.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = opts.DefaultTimeout
	}
	return &PlaywrightLauncher{opts: opts}
}

func driverOptions(browsers ...string) *playwright.RunOptions {
	return &playwright.RunOptions{
		Browsers: browsers,
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
}

// Install downloads the Playwright driver and the named browser.
func Install(browserName string) error {
	if err := playwright.Install(driverOptions(browserName)); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	return nil
}

// Launch starts the driver if needed, then the browser, context and page.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		if l.opts.Install {
			if err := Install(l.opts.Browser); err != nil {
				return nil, err
			}
		}
		pw, err := playwright.Run(driverOptions(l.opts.Browser))
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		l.pw = pw
	}

	var browserType playwright.BrowserType
	switch l.opts.Browser {
	case "firefox":
		browserType = l.pw.Firefox
	case "webkit":
		browserType = l.pw.WebKit
	default:
		browserType = l.pw.Chromium
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
	}
	if l.opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(millis(l.opts.SlowMo))
	}
	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", l.opts.Browser, err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  l.opts.Viewport.Width,
			Height: l.opts.Viewport.Height,
		},
	}
	if l.opts.Locale != "" {
		contextOpts.Locale = playwright.String(l.opts.Locale)
	}
	if l.opts.Timezone != "" {
		contextOpts.TimezoneId = playwright.String(l.opts.Timezone)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	if l.opts.Trace {
		err := bctx.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
			Sources:     playwright.Bool(true),
		})
		if err != nil {
			_ = bctx.Close()
			_ = browser.Close()
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(millis(l.opts.DefaultTimeout))
	page.SetDefaultNavigationTimeout(millis(l.opts.NavigationTimeout))

	now := time.Now()
	return &Session{
		Name:              l.opts.Name,
		Browser:           browser,
		Context:           bctx,
		Page:              page,
		Headless:          l.opts.Headless,
		Tracing:           l.opts.Trace,
		CreatedAt:         now,
		LastUsedAt:        now,
		CurrentURL:        "about:blank",
		NavigationTimeout: l.opts.NavigationTimeout,
	}, nil
}

// Stop shuts the driver down. Safe to call when it never started.
func (l *PlaywrightLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
