package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/aqx-uitest/pkg/failure"
)

// RunSummary is the end-of-session report of one worker.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Worker    string        `json:"worker,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Errored   int           `json:"errored"`
	Tests     []TestSummary `json:"tests"`
}

// TestSummary is one row of a RunSummary.
type TestSummary struct {
	ID        string        `json:"id"`
	Verdict   Verdict       `json:"verdict"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Artifacts Artifacts     `json:"artifacts"`
}

// Summary builds the report for every outcome recorded so far.
func (c *Collector) Summary(started time.Time) *RunSummary {
	outcomes := c.Outcomes()
	s := &RunSummary{
		RunID:     c.opts.RunID,
		Worker:    c.opts.Worker,
		StartTime: started,
		EndTime:   c.opts.Now(),
		Tests:     make([]TestSummary, 0, len(outcomes)),
	}
	s.Duration = s.EndTime.Sub(started)

	for i := range outcomes {
		o := &outcomes[i]
		row := TestSummary{
			ID:        o.TestID,
			Verdict:   o.Verdict,
			Duration:  o.Duration(),
			Artifacts: o.Artifacts,
		}
		if o.Err != nil {
			row.Error = o.Err.Error()
			row.ErrorKind = failure.Kind(o.Err)
		}
		switch o.Verdict {
		case VerdictPass:
			s.Passed++
		case VerdictError:
			s.Errored++
		default:
			s.Failed++
		}
		s.Tests = append(s.Tests, row)
	}
	return s
}

// OK reports whether every test passed.
func (s *RunSummary) OK() bool {
	return s.Failed == 0 && s.Errored == 0
}

// WriteSummary writes run_summary[_{worker}].json and summary[_{worker}].md to dir.
func WriteSummary(dir string, s *RunSummary) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	suffix := ""
	if s.Worker != "" {
		suffix = "_" + s.Worker
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run_summary"+suffix+".json"), data, 0600); err != nil {
		return fmt.Errorf("failed to write run summary JSON: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "summary"+suffix+".md"), []byte(renderMarkdown(s)), 0600); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}

func renderMarkdown(s *RunSummary) string {
	var md strings.Builder

	md.WriteString("# UI Test Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", s.RunID))
	if s.Worker != "" {
		md.WriteString(fmt.Sprintf("**Worker:** %s\n\n", s.Worker))
	}
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", s.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", s.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", s.Duration.Round(time.Millisecond)))

	md.WriteString("## Result\n\n")
	if s.OK() {
		md.WriteString(fmt.Sprintf("✅ **%d passed**\n\n", s.Passed))
	} else {
		md.WriteString(fmt.Sprintf("❌ **%d passed, %d failed, %d errors**\n\n", s.Passed, s.Failed, s.Errored))
	}

	if len(s.Tests) == 0 {
		return md.String()
	}
	md.WriteString("## Tests\n\n")
	md.WriteString("| Test | Verdict | Duration | Error kind | Artifacts |\n")
	md.WriteString("|---|---|---|---|---|\n")
	for _, t := range s.Tests {
		status := "✅ " + string(t.Verdict)
		if t.Verdict != VerdictPass {
			status = "❌ " + string(t.Verdict)
		}
		var paths []string
		for _, p := range []string{t.Artifacts.Screenshot, t.Artifacts.Trace, t.Artifacts.DOM, t.Artifacts.Record} {
			if p != "" {
				paths = append(paths, "`"+cell(p)+"`")
			}
		}
		md.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			cell(t.ID), status, t.Duration.Round(time.Millisecond), cell(t.ErrorKind), strings.Join(paths, "<br>")))
	}

	var failed []TestSummary
	for _, t := range s.Tests {
		if t.Error != "" {
			failed = append(failed, t)
		}
	}
	if len(failed) > 0 {
		md.WriteString("\n## Errors\n\n")
		for _, t := range failed {
			md.WriteString(fmt.Sprintf("- **%s**: %s\n", t.ID, firstLine(t.Error)))
		}
	}
	md.WriteString("\n")
	return md.String()
}

// cell makes v safe inside a table cell.
func cell(v string) string {
	return strings.ReplaceAll(firstLine(v), "|", `\|`)
}

func firstLine(v string) string {
	if i := strings.IndexByte(v, '\n'); i >= 0 {
		return v[:i]
	}
	return v
}
