package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/liweiyi88/pgbackup/jobresult"
)

type Console struct {
	out io.Writer
}

func New() *Console {
	return &Console{out: os.Stdout}
}

func NewWithWriter(out io.Writer) *Console {
	return &Console{out: out}
}

func (console *Console) Notify(report *jobresult.Report) error {
	if report == nil {
		return nil
	}

	_, err := fmt.Fprintln(console.out, strings.Join(report.Lines(), "\r\n"))
	return err
}
