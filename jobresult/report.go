package jobresult

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed with errors"
	StatusFailed              = "failed"
)

// Report aggregates one batch. Error is set when the batch was refused
// before any job ran; otherwise Results holds one entry per dispatched job.
type Report struct {
	Operation Operation
	Host      string
	Results   []*JobResult
	Error     error
	Elapsed   time.Duration

	start time.Time
}

func NewReport(operation Operation, host string) *Report {
	return &Report{
		Operation: operation,
		Host:      host,
		start:     time.Now(),
	}
}

func (report *Report) Fail(err error) *Report {
	report.Error = err
	report.Elapsed = time.Since(report.start)
	return report
}

func (report *Report) Finish(results []*JobResult) *Report {
	report.Results = results
	report.Elapsed = time.Since(report.start)
	return report
}

func (report *Report) Failed() []*JobResult {
	failed := make([]*JobResult, 0)
	for _, result := range report.Results {
		if !result.Succeeded() {
			failed = append(failed, result)
		}
	}

	return failed
}

func (report *Report) Succeeded() []*JobResult {
	succeeded := make([]*JobResult, 0, len(report.Results))
	for _, result := range report.Results {
		if result.Succeeded() {
			succeeded = append(succeeded, result)
		}
	}

	return succeeded
}

func (report *Report) Status() string {
	if report.Error != nil {
		return StatusFailed
	}

	if len(report.Failed()) > 0 {
		return StatusCompletedWithErrors
	}

	return StatusCompleted
}

// Err returns the terminal error, or every job error joined together.
func (report *Report) Err() error {
	if report.Error != nil {
		return report.Error
	}

	var errs error
	for _, result := range report.Failed() {
		errs = errors.Join(errs, fmt.Errorf("%s: %w", result.JobName(), result.Error))
	}

	return errs
}

func (report *Report) Title() string {
	title := fmt.Sprintf("%s backup on %s %s", report.Operation, report.Host, report.Status())
	if report.Operation == OperationRestore || report.Operation == OperationUpload {
		title = fmt.Sprintf("%s on %s %s", report.Operation, report.Host, report.Status())
	}

	if report.Error != nil {
		return fmt.Sprintf("%s: %v", title, report.Error)
	}

	return fmt.Sprintf("%s (%d succeeded, %d failed), it took %s", title, len(report.Succeeded()), len(report.Failed()), report.Elapsed)
}

func (report *Report) Lines() []string {
	lines := make([]string, 0, len(report.Results)+1)
	lines = append(lines, report.Title())

	for _, result := range report.Results {
		lines = append(lines, result.String())
	}

	return lines
}

func (report *Report) String() string {
	return strings.Join(report.Lines(), "\n")
}
