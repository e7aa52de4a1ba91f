// Package logging provides the named loggers used across a test run.
//
// Each logger writes to two sinks: a coarse console sink and a detailed file
// sink (timestamped run log plus a latest.log that is truncated per run).
// Recent file lines are kept so a failing test can attach its own excerpt.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	consoleTimeFormat = "15:04:05"
	fileTimeFormat    = "2006-01-02 15:04:05.000"
	runStampFormat    = "20060102_150405"

	defaultExcerptCapacity = 2000
)

// Options configures a Registry.
type Options struct {
	// Dir receives the run log and the latest pointer. Empty disables file logging.
	Dir string
	// Worker scopes file names so parallel workers never share a file.
	Worker string
	// ConsoleLevel and FileLevel are debug, info, warn or error.
	ConsoleLevel string
	FileLevel    string
	// Console is the coarse sink. Defaults to os.Stderr.
	Console io.Writer
	// ExcerptCapacity bounds the number of recent file lines kept for excerpts.
	ExcerptCapacity int
	// Now stamps the run log name. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions reads LOG_LEVEL, FILE_LOG_LEVEL, E2E_OUTPUT_DIR and E2E_WORKER.
func DefaultOptions() Options {
	opts := Options{
		Dir:          "logs",
		Worker:       os.Getenv("E2E_WORKER"),
		ConsoleLevel: "info",
		FileLevel:    "debug",
	}
	if dir := os.Getenv("E2E_OUTPUT_DIR"); dir != "" {
		opts.Dir = filepath.Join(dir, "logs")
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		opts.ConsoleLevel = level
	}
	if level := os.Getenv("FILE_LOG_LEVEL"); level != "" {
		opts.FileLevel = level
	}
	return opts
}

// Registry owns the sinks of one run and the named loggers bound to them.
type Registry struct {
	runID        string
	worker       string
	runPath      string
	latestPath   string
	consoleLevel log.Level
	fileLevel    log.Level
	console      io.Writer

	sink *fileSink

	mu      sync.Mutex
	loggers map[string]*Logger
}

// NewRegistry opens the run log and truncates the latest pointer. If the log
// directory cannot be prepared it returns a console-only registry together with
// the error, so callers can warn and carry on.
func NewRegistry(opts Options) (*Registry, error) {
	consoleLevel, err := parseLevel(opts.ConsoleLevel, log.InfoLevel)
	if err != nil {
		return nil, err
	}
	fileLevel, err := parseLevel(opts.FileLevel, log.DebugLevel)
	if err != nil {
		return nil, err
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.ExcerptCapacity <= 0 {
		opts.ExcerptCapacity = defaultExcerptCapacity
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	r := &Registry{
		runID:        uuid.New().String(),
		worker:       opts.Worker,
		consoleLevel: consoleLevel,
		fileLevel:    fileLevel,
		console:      opts.Console,
		sink:         newFileSink(opts.ExcerptCapacity),
		loggers:      make(map[string]*Logger),
	}
	if opts.Dir == "" {
		return r, nil
	}

	suffix := ""
	if opts.Worker != "" {
		suffix = "_" + opts.Worker
	}
	runPath := filepath.Join(opts.Dir, fmt.Sprintf("test_run_%s%s.log", now().Format(runStampFormat), suffix))
	latestPath := filepath.Join(opts.Dir, fmt.Sprintf("latest%s.log", suffix))

	if err := os.MkdirAll(opts.Dir, 0750); err != nil {
		return r, fmt.Errorf("failed to create log directory: %w", err)
	}
	runFile, err := os.OpenFile(runPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return r, fmt.Errorf("failed to open run log: %w", err)
	}
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		_ = runFile.Close()
		return r, fmt.Errorf("failed to open latest log: %w", err)
	}

	r.runPath = runPath
	r.latestPath = latestPath
	r.sink.attach(runFile, latestFile)
	return r, nil
}

func parseLevel(s string, def log.Level) (log.Level, error) {
	if s == "" {
		return def, nil
	}
	level, err := log.ParseLevel(strings.ToLower(s))
	if err != nil {
		return def, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Get returns the logger called name, creating it on first use. Every call
// with the same name yields the same *Logger.
func (r *Registry) Get(name string) *Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[name]; ok {
		return l
	}

	console := log.NewWithOptions(r.console, log.Options{
		Level:           r.consoleLevel,
		Prefix:          name,
		TimeFormat:      consoleTimeFormat,
		ReportTimestamp: true,
	})
	console.SetStyles(consoleStyles())

	fields := []interface{}{"run", r.runID[:8]}
	if r.worker != "" {
		fields = append(fields, "worker", r.worker)
	}
	file := log.NewWithOptions(r.sink, log.Options{
		Level:           r.fileLevel,
		Prefix:          name,
		TimeFormat:      fileTimeFormat,
		ReportTimestamp: true,
		ReportCaller:    true,
		CallerOffset:    1,
		Formatter:       log.TextFormatter,
	}).With(fields...)

	l := &Logger{name: name, console: console, file: file}
	r.loggers[name] = l
	return l
}

// RunID identifies this run in log lines and failure records.
func (r *Registry) RunID() string { return r.runID }

// Worker returns the worker id the sinks are scoped to.
func (r *Registry) Worker() string { return r.worker }

// RunLogPath is the timestamped log of this run, or "" without file logging.
func (r *Registry) RunLogPath() string { return r.runPath }

// LatestLogPath is the truncated per-run copy, or "" without file logging.
func (r *Registry) LatestLogPath() string { return r.latestPath }

// Mark returns a position in the file sink for a later Excerpt.
func (r *Registry) Mark() uint64 { return r.sink.mark() }

// Excerpt returns up to n file-sink lines written after mark, oldest first.
func (r *Registry) Excerpt(mark uint64, n int) []string { return r.sink.excerpt(mark, n) }

// Close flushes and closes the log files. Loggers keep writing to the console.
func (r *Registry) Close() error { return r.sink.close() }

func consoleStyles() *log.Styles {
	styles := log.DefaultStyles()
	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().SetString("DEBU").Bold(true).Foreground(lipgloss.Color("63"))
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().SetString("INFO").Bold(true).Foreground(lipgloss.Color("86"))
	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().SetString("WARN").Bold(true).Foreground(lipgloss.Color("192"))
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().SetString("ERROR").Bold(true).Foreground(lipgloss.Color("204"))
	styles.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	return styles
}

// Logger writes every record to the console and file sinks of its registry,
// each filtered by its own level.
type Logger struct {
	name    string
	console *log.Logger
	file    *log.Logger
}

// Name returns the registry key of this logger.
func (l *Logger) Name() string { return l.name }

// Debug logs at debug level with key/value fields.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.console.Debug(msg, keyvals...)
	l.file.Debug(msg, keyvals...)
}

// Info logs at info level with key/value fields.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.console.Info(msg, keyvals...)
	l.file.Info(msg, keyvals...)
}

// Warn logs at warn level with key/value fields.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.console.Warn(msg, keyvals...)
	l.file.Warn(msg, keyvals...)
}

// Error logs at error level with key/value fields.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.console.Error(msg, keyvals...)
	l.file.Error(msg, keyvals...)
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.console.Debugf(format, args...)
	l.file.Debugf(format, args...)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.console.Infof(format, args...)
	l.file.Infof(format, args...)
}

// Warnf logs a formatted warning.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.console.Warnf(format, args...)
	l.file.Warnf(format, args...)
}

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.console.Errorf(format, args...)
	l.file.Errorf(format, args...)
}

// Process-wide registry.
var (
	globalMu sync.Mutex
	global   *Registry
)

// Init creates the process-wide registry. Once one exists, later calls return
// it unchanged until Shutdown.
func Init(opts Options) (*Registry, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return global, nil
	}
	r, err := NewRegistry(opts)
	if r == nil {
		return nil, err
	}
	global = r
	if err != nil {
		r.Get("logging").Warnf("file logging disabled: %v", err)
	}
	return r, err
}

// Default returns the process-wide registry, creating it from DefaultOptions
// on first use.
func Default() *Registry {
	globalMu.Lock()
	r := global
	globalMu.Unlock()
	if r != nil {
		return r
	}

	r, err := Init(DefaultOptions())
	if r == nil {
		// Invalid levels in the environment; fall back to built-in defaults.
		opts := DefaultOptions()
		opts.ConsoleLevel, opts.FileLevel = "", ""
		r, _ = Init(opts)
		r.Get("logging").Warnf("ignoring log level settings: %v", err)
	}
	return r
}

// Get returns the named logger from the process-wide registry.
func Get(name string) *Logger {
	return Default().Get(name)
}

// Shutdown closes the process-wide registry. A later Init or Get starts a new run.
func Shutdown() error {
	globalMu.Lock()
	r := global
	global = nil
	globalMu.Unlock()

	if r == nil {
		return nil
	}
	return r.Close()
}
