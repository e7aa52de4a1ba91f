// Package artifact captures evidence for failed tests: a screenshot, the
// interaction trace, a cleaned DOM snapshot and a YAML failure record that
// carries the tail of the test's log. Passing tests leave no files behind.
//
// Capture problems are reported as *failure.ArtifactWriteError, logged at WARN
// and counted. They never change the verdict of the test being documented.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/aqx-uitest/pkg/config"
	"github.com/entrhq/aqx-uitest/pkg/failure"
)

// Source is the evidence provider of the running test, normally the
// *browser.Session.
type Source interface {
	Screenshot() ([]byte, error)
	StartTrace(title string) error
	StopTrace(path string) error
	DOMSnapshot() (string, error)
}

// Logger receives pass, failure and warning entries.
type Logger interface {
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Excerpter returns the log lines written since a mark.
type Excerpter interface {
	Mark() uint64
	Excerpt(mark uint64, n int) []string
}

// Recorder counts artifacts that could not be written.
type Recorder interface {
	ArtifactWriteFailed(kind string)
}

// Matcher selects test ids, see config.Config.TraceMatcher.
type Matcher interface {
	Match(string) bool
}

// Options configure a Collector.
type Options struct {
	Paths       config.Paths
	Screenshots bool
	Traces      bool
	DOM         bool
	// TraceFilter limits saved traces to matching test ids. Nil keeps all.
	TraceFilter  Matcher
	ExcerptLines int
	RunID        string
	Worker       string

	Logger   Logger
	Excerpts Excerpter
	Recorder Recorder
	Now      func() time.Time
}

// OptionsFromConfig derives the artifact settings of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	matcher, err := cfg.TraceMatcher()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Paths:        cfg.Paths(),
		Screenshots:  cfg.Artifacts.Screenshots,
		Traces:       cfg.Artifacts.Traces,
		DOM:          cfg.Artifacts.DOM,
		TraceFilter:  matcher,
		ExcerptLines: cfg.Logging.ExcerptLines,
		Worker:       cfg.Output.Worker,
	}, nil
}

// Collector is the failure-artifact hook of one worker. Tests run one at a
// time, so it tracks a single active test.
type Collector struct {
	opts Options

	mu       sync.Mutex
	src      Source
	testID   string
	mark     uint64
	tracing  bool
	outcomes []TestOutcome
}

// NewCollector creates a collector.
func NewCollector(opts Options) *Collector {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Collector{opts: opts}
}

// BeforeTest starts evidence collection for testID: it marks the log position
// and opens a trace chunk on src.
func (c *Collector) BeforeTest(testID string, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.src = src
	c.testID = testID
	c.tracing = false
	if c.opts.Excerpts != nil {
		c.mark = c.opts.Excerpts.Mark()
	}
	if src == nil || !c.opts.Traces {
		return
	}
	if err := src.StartTrace(testID); err != nil {
		c.warn(&failure.ArtifactWriteError{Kind: "trace", Err: err}, testID)
		return
	}
	c.tracing = true
}

// AfterTest records outcome. For failures it saves the evidence and fills
// outcome.Artifacts; the returned error joins every ArtifactWriteError and is
// informational only.
func (c *Collector) AfterTest(outcome *TestOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outcome.Finished.IsZero() {
		outcome.Finished = c.opts.Now()
	}
	if outcome.Verdict == "" {
		outcome.Verdict = VerdictFor(outcome.Err)
	}
	src, tracing := c.src, c.tracing
	c.src, c.tracing = nil, false
	defer func() { c.outcomes = append(c.outcomes, *outcome) }()

	if !outcome.Failed() {
		if tracing {
			if err := src.StopTrace(""); err != nil {
				c.warn(&failure.ArtifactWriteError{Kind: "trace", Err: err}, outcome.TestID)
			}
		}
		c.opts.Logger.Info("test passed", "test", outcome.TestID, "duration", outcome.Duration())
		return nil
	}

	key := Key(outcome.TestID, outcome.Finished)
	var errs []error
	keep := func(err error) {
		if err != nil {
			c.warn(err, outcome.TestID)
			errs = append(errs, err)
		}
	}

	if c.opts.Excerpts != nil && c.opts.ExcerptLines > 0 {
		outcome.Artifacts.LogExcerpt = c.opts.Excerpts.Excerpt(c.mark, c.opts.ExcerptLines)
	}
	if src != nil && c.opts.Screenshots {
		keep(c.saveScreenshot(src, key, &outcome.Artifacts))
	}
	if tracing {
		keep(c.saveTrace(src, outcome.TestID, key, &outcome.Artifacts))
	}
	if src != nil && c.opts.DOM {
		keep(c.saveDOM(src, key, &outcome.Artifacts))
	}
	keep(c.saveRecord(src, key, outcome))

	c.opts.Logger.Error("test failed",
		"test", outcome.TestID,
		"verdict", outcome.Verdict,
		"err", outcome.Err,
		"screenshot", outcome.Artifacts.Screenshot,
		"trace", outcome.Artifacts.Trace,
		"dom", outcome.Artifacts.DOM,
		"record", outcome.Artifacts.Record,
		"log", strings.Join(outcome.Artifacts.LogExcerpt, "\n"),
	)
	return errors.Join(errs...)
}

// Outcomes returns every outcome recorded so far, in order.
func (c *Collector) Outcomes() []TestOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TestOutcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}

func (c *Collector) saveScreenshot(src Source, key string, a *Artifacts) error {
	data, err := src.Screenshot()
	if err != nil {
		return &failure.ArtifactWriteError{Kind: "screenshot", Err: err}
	}
	path := filepath.Join(c.opts.Paths.Screenshots, key+".png")
	if err := writeFile("screenshot", path, data); err != nil {
		return err
	}
	a.Screenshot = path
	return nil
}

func (c *Collector) saveTrace(src Source, testID, key string, a *Artifacts) error {
	if c.opts.TraceFilter != nil && !c.opts.TraceFilter.Match(testID) {
		if err := src.StopTrace(""); err != nil {
			return &failure.ArtifactWriteError{Kind: "trace", Err: err}
		}
		return nil
	}
	path := filepath.Join(c.opts.Paths.Traces, key+".zip")
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		_ = src.StopTrace("")
		return &failure.ArtifactWriteError{Kind: "trace", Path: path, Err: err}
	}
	if err := src.StopTrace(path); err != nil {
		return &failure.ArtifactWriteError{Kind: "trace", Path: path, Err: err}
	}
	a.Trace = path
	return nil
}

func (c *Collector) saveDOM(src Source, key string, a *Artifacts) error {
	dom, err := src.DOMSnapshot()
	if err != nil {
		return &failure.ArtifactWriteError{Kind: "dom", Err: err}
	}
	path := filepath.Join(c.opts.Paths.DOM, key+".html")
	if err := writeFile("dom", path, []byte(dom)); err != nil {
		return err
	}
	a.DOM = path
	return nil
}

func (c *Collector) saveRecord(src Source, key string, o *TestOutcome) error {
	path := filepath.Join(c.opts.Paths.Failures, key+".yaml")
	rec := FailureRecord{
		RunID:      c.opts.RunID,
		Worker:     c.opts.Worker,
		TestID:     o.TestID,
		Verdict:    o.Verdict,
		ErrorKind:  failure.Kind(o.Err),
		Started:    o.Started,
		Finished:   o.Finished,
		Duration:   o.Duration().String(),
		Artifacts:  o.Artifacts,
		LogExcerpt: o.Artifacts.LogExcerpt,
	}
	rec.Artifacts.Record = path
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if u, ok := src.(interface{ URL() string }); ok {
		rec.URL = u.URL()
	}

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return &failure.ArtifactWriteError{Kind: "record", Path: path, Err: fmt.Errorf("failed to marshal failure record: %w", err)}
	}
	if err := writeFile("record", path, data); err != nil {
		return err
	}
	o.Artifacts.Record = path
	return nil
}

func (c *Collector) warn(err error, testID string) {
	var we *failure.ArtifactWriteError
	kind := "unknown"
	if errors.As(err, &we) {
		kind = we.Kind
	}
	c.opts.Logger.Warn("artifact not saved", "test", testID, "kind", kind, "err", err)
	if c.opts.Recorder != nil {
		c.opts.Recorder.ArtifactWriteFailed(kind)
	}
}

func writeFile(kind, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return &failure.ArtifactWriteError{Kind: kind, Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return &failure.ArtifactWriteError{Kind: kind, Path: path, Err: err}
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
