package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrSessionClosed is returned by Session methods after Close.
var ErrSessionClosed = errors.New("browser session is closed")

// UpdateLastUsed updates the LastUsedAt timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.mu.Lock()
	s.LastUsedAt = time.Now()
	s.mu.Unlock()
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// URL returns the page's current URL.
func (s *Session) URL() string {
	if s.Closed() {
		return s.CurrentURL
	}
	return s.Page.URL()
}

// Navigate navigates the session's page to url.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	s.UpdateLastUsed()

	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.NavigationTimeout
	}
	if timeout > 0 {
		gotoOpts.Timeout = playwright.Float(millis(timeout))
	}

	if _, err := s.Page.Goto(url, gotoOpts); err != nil {
		return Classify("navigate to "+url, err)
	}
	s.CurrentURL = s.Page.URL()
	return nil
}

// Screenshot captures the visible page as PNG.
func (s *Session) Screenshot() ([]byte, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	data, err := s.Page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// StartTrace opens a trace chunk titled title. It is a no-op when the session
// was launched without tracing.
func (s *Session) StartTrace(title string) error {
	if !s.Tracing {
		return nil
	}
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.Context.Tracing().StartChunk(playwright.TracingStartChunkOptions{
		Title: playwright.String(title),
	}); err != nil {
		return fmt.Errorf("failed to start trace chunk: %w", err)
	}
	return nil
}

// StopTrace closes the current trace chunk and saves it to path. An empty path
// discards the chunk.
func (s *Session) StopTrace(path string) error {
	if !s.Tracing {
		return nil
	}
	if s.Closed() {
		return ErrSessionClosed
	}
	var err error
	if path == "" {
		err = s.Context.Tracing().StopChunk()
	} else {
		err = s.Context.Tracing().StopChunk(path)
	}
	if err != nil {
		return fmt.Errorf("failed to stop trace chunk: %w", err)
	}
	return nil
}

// DOMSnapshot returns the page's cleaned markup for offline inspection.
func (s *Session) DOMSnapshot() (string, error) {
	if s.Closed() {
		return "", ErrSessionClosed
	}
	raw, err := s.Page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	snap, err := CleanMarkup(raw, DefaultSnapshotBytes)
	if err != nil {
		return "", err
	}
	return snap.Render(s.URL()), nil
}

// Close closes the page, stops tracing, then closes the context and browser.
// Every step runs even if an earlier one fails; the errors are joined. Safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		var errs []error
		if s.Page != nil {
			if err := s.Page.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if s.Context != nil {
			if s.Tracing {
				if err := s.Context.Tracing().Stop(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
					errs = append(errs, fmt.Errorf("stop tracing: %w", err))
				}
			}
			if err := s.Context.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
				errs = append(errs, fmt.Errorf("close context: %w", err))
			}
		}
		if s.Browser != nil {
			if err := s.Browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
