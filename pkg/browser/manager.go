package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/aqx-uitest/pkg/failure"
)

// ErrManagerClosed is returned by Acquire after Release.
var ErrManagerClosed = errors.New("session manager is closed")

// Authenticator logs a freshly launched session in. It must honour ctx, which
// carries the login timeout.
type Authenticator func(ctx context.Context, s *Session) error

// Logger is the subset of logging.Logger the manager uses.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// ManagerOptions configures a SessionManager.
type ManagerOptions struct {
	// LoginURL is reported in authentication failures
	LoginURL string
	// LoginTimeout bounds the Authenticator. Zero means DefaultLoginTimeout.
	LoginTimeout time.Duration
	Logger       Logger
}

// SessionManager owns the single authenticated session of a worker. The
// session is created on the first Acquire and shared by every later one
// until Release.
type SessionManager struct {
	launcher Launcher
	auth     Authenticator
	opts     ManagerOptions

	mu      sync.Mutex
	state   State
	session *Session
	failed  error
}

// NewSessionManager creates a manager in StateUninitialized. A nil auth
// skips login.
func NewSessionManager(launcher Launcher, auth Authenticator, opts ManagerOptions) *SessionManager {
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = DefaultLoginTimeout
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &SessionManager{
		launcher: launcher,
		auth:     auth,
		opts:     opts,
		state:    StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Acquire returns the ready session, launching and authenticating it on first
// use. After a failed login every call returns the same *failure.AuthenticationError.
func (m *SessionManager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady:
		return m.session, nil
	case StateFailed:
		return nil, m.failed
	case StateClosed:
		return nil, ErrManagerClosed
	}

	m.state = StateAuthenticating
	m.opts.Logger.Infof("launching browser session")

	s, err := m.launcher.Launch(ctx)
	if err != nil {
		return nil, m.fail(nil, fmt.Errorf("launch: %w", err))
	}

	if m.auth != nil {
		if err := m.authenticate(ctx, s); err != nil {
			return nil, m.fail(s, err)
		}
	}

	m.session = s
	m.state = StateReady
	m.opts.Logger.Infof("browser session ready")
	return s, nil
}

func (m *SessionManager) authenticate(ctx context.Context, s *Session) error {
	authCtx, cancel := context.WithTimeout(ctx, m.opts.LoginTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("authenticator panicked: %v", r)
			}
		}()
		done <- m.auth(authCtx, s)
	}()

	select {
	case err := <-done:
		return err
	case <-authCtx.Done():
		if errors.Is(authCtx.Err(), context.DeadlineExceeded) {
			return &failure.TimedOutError{Condition: "login", Timeout: m.opts.LoginTimeout, Elapsed: m.opts.LoginTimeout}
		}
		return authCtx.Err()
	}
}

// fail moves the manager to StateFailed and tears down whatever was launched.
// Caller holds m.mu.
func (m *SessionManager) fail(s *Session, cause error) error {
	if s != nil {
		if err := s.Close(); err != nil {
			m.opts.Logger.Warnf("closing session after failed login: %v", err)
		}
	}
	if err := m.launcher.Stop(); err != nil {
		m.opts.Logger.Warnf("stopping driver after failed login: %v", err)
	}

	m.failed = &failure.AuthenticationError{URL: m.opts.LoginURL, Err: cause}
	m.state = StateFailed
	m.opts.Logger.Errorf("%v", m.failed)
	return m.failed
}

// Release closes the session and stops the driver. It is safe to call in any
// state and more than once; only the first call after a ready session does work.
func (m *SessionManager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady {
		if m.state == StateUninitialized {
			m.state = StateClosed
		}
		return nil
	}

	var errs []error
	if err := m.session.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.launcher.Stop(); err != nil {
		errs = append(errs, err)
	}
	m.session = nil
	m.state = StateClosed

	if err := errors.Join(errs...); err != nil {
		m.opts.Logger.Warnf("session teardown: %v", err)
		return err
	}
	m.opts.Logger.Infof("browser session closed")
	return nil
}

// With acquires the session, runs fn and releases the session on every exit
// path. A panic in fn is re-raised after teardown.
func (m *SessionManager) With(ctx context.Context, fn func(*Session) error) (err error) {
	s, err := m.Acquire(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = m.Release()
			panic(r)
		}
		if rerr := m.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(s)
}
