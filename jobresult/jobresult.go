package jobresult

import (
	"fmt"
	"time"
)

type JobResult struct {
	Job     *Job
	Error   error
	Output  string
	Elapsed time.Duration
}

func (result *JobResult) Succeeded() bool {
	return result.Error == nil
}

func (result *JobResult) JobName() string {
	if result.Job == nil {
		return "unknown job"
	}

	return result.Job.Name()
}

func (result *JobResult) String() string {
	if result.Error != nil {
		return fmt.Sprintf("%s failed, it took %s with error: %v", result.JobName(), result.Elapsed, result.Error)
	}

	return fmt.Sprintf("%s succeeded, it took %v", result.JobName(), result.Elapsed)
}

func (result *JobResult) ToSlackText() string {
	if result.Error != nil {
		return fmt.Sprintf(":x: `%s` failed, it took *%s* ```%v```", result.JobName(), result.Elapsed, result.Error)
	}

	return fmt.Sprintf(":white_check_mark: `%s` succeeded, it took *%v*", result.JobName(), result.Elapsed)
}
