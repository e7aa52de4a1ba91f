package browser

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// State is the lifecycle position of a SessionManager.
type State int

const (
	StateUninitialized State = iota
	StateAuthenticating
	StateReady
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Session is one browser, one browser context and the page tests drive.
type Session struct {
	// Name identifies the session in logs, typically the worker id
	Name string

	// Browser is the Playwright browser instance
	Browser playwright.Browser

	// Context is the browser context holding the login cookies
	Context playwright.BrowserContext

	// Page is the authenticated page shared by sequential tests
	Page playwright.Page

	// Headless indicates if the browser is running in headless mode
	Headless bool

	// Tracing is true when the context records a trace that tests can chunk
	Tracing bool

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	// LastUsedAt is the timestamp of the last operation on this session
	LastUsedAt time.Time

	// CurrentURL is the URL after the last navigation
	CurrentURL string

	// NavigationTimeout bounds Navigate when the call sets no timeout
	NavigationTimeout time.Duration

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// LaunchOptions configures the browser, context and page of a new session.
type LaunchOptions struct {
	// Name is copied to Session.Name
	Name string

	// Browser is chromium, firefox or webkit
	Browser string

	Headless bool
	SlowMo   time.Duration

	Viewport Viewport
	Locale   string
	Timezone string

	// DefaultTimeout applies to page actions, NavigationTimeout to Goto
	DefaultTimeout    time.Duration
	NavigationTimeout time.Duration

	// Trace starts context tracing with screenshots, snapshots and sources
	Trace bool

	// Install downloads the driver and browser before the first launch
	Install bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle", "commit"
	WaitUntil string

	// Timeout overrides the session navigation timeout
	Timeout time.Duration
}

// Default values used when LaunchOptions leave a field zero.
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultTimeout        = 30 * time.Second
	DefaultLoginTimeout   = 45 * time.Second

	// DefaultSnapshotBytes caps the cleaned DOM written for a failed test.
	DefaultSnapshotBytes = 512 * 1024
)

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
