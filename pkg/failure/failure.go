// Package failure defines the error taxonomy shared by the wait, retry, session
// and artifact layers.
//
// Every failure that crosses a package boundary is one of:
//
//   - TimedOutError: a wait condition never became true (errors.Is ErrTimedOut)
//   - TransientError: a retryable interaction glitch
//   - ExhaustedError: the retry budget ran out; unwraps to the last transient failure
//   - AuthenticationError: login did not complete; fatal for the whole run
//   - ArtifactWriteError: evidence capture failed; logged, never propagated
//
// Callers branch with errors.Is / errors.As rather than on message text.
package failure

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimedOut matches every TimedOutError.
	ErrTimedOut = errors.New("timed out")

	// ErrTransient matches every TransientError.
	ErrTransient = errors.New("transient action failure")

	// ErrAuthentication matches every AuthenticationError.
	ErrAuthentication = errors.New("authentication failed")

	// ErrArtifactWrite matches every ArtifactWriteError.
	ErrArtifactWrite = errors.New("artifact write failed")
)

// TimedOutError reports a wait condition that did not hold within its timeout.
type TimedOutError struct {
	Condition   string
	Timeout     time.Duration
	Elapsed     time.Duration
	Evaluations int

	// LastValue is the last observed field value, if the wait observed one.
	LastValue string
	// LastErr is the last transient error seen while evaluating, if any.
	LastErr error
}

func (e *TimedOutError) Error() string {
	msg := fmt.Sprintf("condition %q not met within %s (%d evaluations)", e.Condition, e.Timeout, e.Evaluations)
	if e.LastValue != "" {
		msg += fmt.Sprintf(", last value %q", e.LastValue)
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf(": %v", e.LastErr)
	}
	return msg
}

// Is reports whether target is ErrTimedOut.
func (e *TimedOutError) Is(target error) bool {
	return target == ErrTimedOut
}

// Unwrap returns the last transient error seen while polling.
func (e *TimedOutError) Unwrap() error {
	return e.LastErr
}

// TransientError wraps an interaction failure that may succeed if tried again,
// e.g. an element that is briefly occluded, detached or not yet enabled.
type TransientError struct {
	Op  string
	Err error
}

// Transient marks err as retryable. A nil err yields nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transient: %v", e.Err)
	}
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

// Is reports whether target is ErrTransient.
func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

// Unwrap returns the underlying engine error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err, or anything it wraps, is a TransientError.
// Exhausted retries, timed-out waits and failed logins are final even when they carry a
// transient cause.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrTimedOut) || errors.Is(err, ErrAuthentication) {
		return false
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

// ExhaustedError is returned when every attempt allowed by a retry policy failed
// transiently. It unwraps to the failure of the final attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

// Unwrap returns the last transient failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// AuthenticationError reports a login that did not complete. It aborts the run.
type AuthenticationError struct {
	URL string
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication against %s failed: %v", e.URL, e.Err)
}

// Is reports whether target is ErrAuthentication.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// Unwrap returns the cause of the login failure.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ArtifactWriteError reports evidence that could not be captured or stored.
// It is secondary to the test failure being documented and must not replace it.
type ArtifactWriteError struct {
	Kind string
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to capture %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("failed to write %s to %s: %v", e.Kind, e.Path, e.Err)
}

// Is reports whether target is ErrArtifactWrite.
func (e *ArtifactWriteError) Is(target error) bool {
	return target == ErrArtifactWrite
}

// Unwrap returns the underlying I/O or engine error.
func (e *ArtifactWriteError) Unwrap() error {
	return e.Err
}

// Kind names the category of err for reports and metrics labels.
func Kind(err error) string {
	var exhausted *ExhaustedError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.As(err, &exhausted):
		return "exhausted"
	case errors.Is(err, ErrTimedOut):
		return "timed_out"
	case errors.Is(err, ErrArtifactWrite):
		return "artifact_write"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "other"
	}
}
