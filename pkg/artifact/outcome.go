package artifact

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/aqx-uitest/pkg/failure"
)

// Verdict is the result of one test.
type Verdict string

const (
	VerdictPass  Verdict = "pass"
	VerdictFail  Verdict = "fail"
	VerdictError Verdict = "error"
)

// VerdictFor maps a test error to a verdict. Failures outside the test body
// (login, a broken session) are errors rather than failures.
func VerdictFor(err error) Verdict {
	switch {
	case err == nil:
		return VerdictPass
	case errors.Is(err, failure.ErrAuthentication):
		return VerdictError
	default:
		return VerdictFail
	}
}

// Artifacts lists the evidence saved for a failed test. Empty paths were not
// captured.
type Artifacts struct {
	Screenshot string `yaml:"screenshot,omitempty" json:"screenshot,omitempty"`
	Trace      string `yaml:"trace,omitempty" json:"trace,omitempty"`
	DOM        string `yaml:"dom,omitempty" json:"dom,omitempty"`
	Record     string `yaml:"record,omitempty" json:"record,omitempty"`

	LogExcerpt []string `yaml:"-" json:"-"`
}

// TestOutcome is what the harness reports to the collector after a test.
type TestOutcome struct {
	TestID    string
	Verdict   Verdict
	Err       error
	Started   time.Time
	Finished  time.Time
	Artifacts Artifacts
}

// Failed reports whether the outcome needs evidence.
func (o *TestOutcome) Failed() bool {
	return o.Verdict != VerdictPass
}

// Duration is the wall time between Started and Finished.
func (o *TestOutcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Finished.Before(o.Started) {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

// FailureRecord is the YAML document written next to the artifacts of a failed test.
type FailureRecord struct {
	RunID      string    `yaml:"run_id"`
	Worker     string    `yaml:"worker,omitempty"`
	TestID     string    `yaml:"test_id"`
	Verdict    Verdict   `yaml:"verdict"`
	Error      string    `yaml:"error"`
	ErrorKind  string    `yaml:"error_kind"`
	URL        string    `yaml:"url,omitempty"`
	Started    time.Time `yaml:"started"`
	Finished   time.Time `yaml:"finished"`
	Duration   string    `yaml:"duration"`
	Artifacts  Artifacts `yaml:"artifacts"`
	LogExcerpt []string  `yaml:"log_excerpt,omitempty"`
}

const keyTimeFormat = "20060102_150405"

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key names the artifacts of one failure: the sanitized test id plus the
// failure time, e.g. TestOrders_market_buy_20251217_084710.
func Key(testID string, at time.Time) string {
	name := strings.Trim(unsafeKeyChars.ReplaceAllString(testID, "_"), "_.")
	if name == "" {
		name = "test"
	}
	return name + "_" + at.Format(keyTimeFormat)
}
