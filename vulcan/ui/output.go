package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wzshiming/ctc"
)

type Output struct {
	stdout io.Writer
	stderr io.Writer
}

func NewOutput(stdout, stderr io.Writer) *Output {
	return &Output{
		stdout: stdout,
		stderr: stderr,
	}
}

// Header prints a formatted section header
func (o *Output) Header(text string) {
	fmt.Fprintf(o.stdout, "\n%s\n", strings.Repeat("=", len(text)))
	fmt.Fprintf(o.stdout, "%s\n", text)
	fmt.Fprintf(o.stdout, "%s\n\n", strings.Repeat("=", len(text)))
}

// Section prints a section title
func (o *Output) Section(text string) {
	fmt.Fprintf(o.stdout, "\n%s\n%s\n", text, strings.Repeat("-", len(text)))
}

// Info prints an informational message
func (o *Output) Info(format string, args ...any) {
	fmt.Fprintf(o.stdout, format+"\n", args...)
}

// Success prints a success message with checkmark
func (o *Output) Success(format string, args ...any) {
	fmt.Fprintf(o.stdout, "✓ "+format+"\n", args...)
}

// Error prints an error message
func (o *Output) Error(format string, args ...any) {
	fmt.Fprintf(o.stderr, o.DotRed()+" "+format+"\n", args...)
}

// Warning prints a warning message
func (o *Output) Warning(format string, args ...any) {
	fmt.Fprintf(o.stdout, "⚠ "+format+"\n", args...)
}

// JobLog prints a job-scoped log message
func (o *Output) JobLog(jobID, format string, args ...any) {
	timestamp := time.Now().Format("15:04:05")
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(o.stdout, "[%s] [%s] %s\n", timestamp, jobID, message)
}

// DryRunHeader prints dry-run mode header
func (o *Output) DryRunHeader(pkg string) {
	o.Header(fmt.Sprintf("DRY-RUN: %s", pkg))
	o.Info("This submit would run the following jobs:")
}

// SubmitStarted prints submit start information
func (o *Output) SubmitStarted(pkg, submitID string, jobs int) {
	o.Header(fmt.Sprintf("Submit: %s", pkg))
	o.Info("Submit ID: %s", submitID)
	o.Info("Jobs: %d", jobs)
	o.Info("Started: %s", time.Now().Format(time.RFC3339))
}

// SubmitCompleted prints submit completion summary
func (o *Output) SubmitCompleted(artifacts int, duration time.Duration) {
	o.Success("Submit completed successfully")
	o.Info("Artifacts: %d", artifacts)
	o.Info("Duration: %s", duration)
}

// SubmitFailed prints per-job failure information
func (o *Output) SubmitFailed(jobErrors map[string]error) {
	o.Error("Submit failed on %d job(s)", len(jobErrors))
	for id, err := range jobErrors {
		o.Info("  %s[%s]%s %v", ctc.ForegroundRed, id, ctc.Reset, err)
	}
}

func (o *Output) DotRed() string {
	return fmt.Sprint(ctc.ForegroundRed, "•", ctc.Reset)
}
