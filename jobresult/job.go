package jobresult

import "fmt"

type Operation string

const (
	OperationFull        Operation = "full"
	OperationData        Operation = "data"
	OperationStruct      Operation = "struct"
	OperationTableData   Operation = "table-data"
	OperationTableStruct Operation = "table-struct"
	OperationTableAll    Operation = "table-all"
	OperationRestore     Operation = "restore"
	OperationUpload      Operation = "upload"
)

// Job is the smallest dispatchable unit of work, scoped to one database,
// one database table or one file.
type Job struct {
	Database   string
	Table      string
	Operation  Operation
	TargetFile string
	Command    string
}

func (job *Job) Name() string {
	switch {
	case job.Table != "":
		return fmt.Sprintf("%s %s.%s", job.Operation, job.Database, job.Table)
	case job.Database != "":
		return fmt.Sprintf("%s %s", job.Operation, job.Database)
	default:
		return fmt.Sprintf("%s %s", job.Operation, job.TargetFile)
	}
}
