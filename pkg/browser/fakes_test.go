package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

type fakeTracing struct {
	playwright.Tracing
	mu       sync.Mutex
	chunks   []string
	saved    []string
	stopped  bool
	chunkErr error
}

func (t *fakeTracing) StartChunk(opts ...playwright.TracingStartChunkOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chunkErr != nil {
		return t.chunkErr
	}
	title := ""
	if len(opts) > 0 && opts[0].Title != nil {
		title = *opts[0].Title
	}
	t.chunks = append(t.chunks, title)
	return nil
}

func (t *fakeTracing) StopChunk(path ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(path) > 0 {
		t.saved = append(t.saved, path[0])
	} else {
		t.saved = append(t.saved, "")
	}
	return nil
}

func (t *fakeTracing) Stop(path ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}

type fakePage struct {
	playwright.Page
	url      string
	content  string
	shot     []byte
	gotoErr  error
	closeErr error
	closed   bool
	gotoURLs []string
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.gotoURLs = append(p.gotoURLs, url)
	if p.gotoErr != nil {
		return nil, p.gotoErr
	}
	p.url = url
	return nil, nil
}

func (p *fakePage) Screenshot(...playwright.PageScreenshotOptions) ([]byte, error) {
	return p.shot, nil
}

func (p *fakePage) Content() (string, error) { return p.content, nil }

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.closed = true
	return p.closeErr
}

type fakeContext struct {
	playwright.BrowserContext
	tracing *fakeTracing
	closed  bool
}

func (c *fakeContext) Tracing() playwright.Tracing { return c.tracing }

func (c *fakeContext) Close(...playwright.BrowserContextCloseOptions) error {
	c.closed = true
	return nil
}

type fakeBrowser struct {
	playwright.Browser
	closed bool
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	b.closed = true
	return nil
}

type fakeSession struct {
	*Session
	page    *fakePage
	context *fakeContext
	browser *fakeBrowser
	tracing *fakeTracing
}

func newFakeSession(tracing bool) *fakeSession {
	f := &fakeSession{
		page:    &fakePage{url: "about:blank"},
		tracing: &fakeTracing{},
		browser: &fakeBrowser{},
	}
	f.context = &fakeContext{tracing: f.tracing}
	now := time.Now()
	f.Session = &Session{
		Name:       "gw0",
		Browser:    f.browser,
		Context:    f.context,
		Page:       f.page,
		Tracing:    tracing,
		CreatedAt:  now,
		LastUsedAt: now,
		CurrentURL: "about:blank",
	}
	return f
}

type fakeLauncher struct {
	mu        sync.Mutex
	launches  int
	stops     int
	launchErr error
	sessions  []*fakeSession
}

func (l *fakeLauncher) Launch(ctx context.Context) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	f := newFakeSession(true)
	l.sessions = append(l.sessions, f)
	return f.Session, nil
}

func (l *fakeLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops++
	return nil
}

func (l *fakeLauncher) last() *fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sessions) == 0 {
		return nil
	}
	return l.sessions[len(l.sessions)-1]
}

var errBadCredentials = errors.New("welcome announcement never appeared")
