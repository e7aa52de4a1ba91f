// Package browser owns the Playwright session a test worker runs against.
//
// A worker has exactly one SessionManager. The first Acquire launches the
// browser, creates a context and page, and runs the login Authenticator under
// the login timeout; every later Acquire returns the same ready session:
//
//	UNINITIALIZED -> AUTHENTICATING -> READY -> CLOSED
//	                              \-> FAILED
//
// FAILED is terminal. Once login has failed (or timed out, or the browser could
// not be launched) every Acquire returns the same *failure.AuthenticationError
// so the run aborts instead of retrying a broken environment.
//
// Release tears the session down: page, trace recording, context, browser and
// finally the driver process. With wraps Acquire/Release so teardown happens on
// every exit path of the body, panics included.
//
// Engine errors pass through Classify before they reach a retry loop, which
// separates re-render races (transient) from closed targets (fatal).
package browser
