package printer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ensemblehq/conductor/service/agent"
)

const name = "printer"

// Agent prints its input to a writer, standard output by default.
type Agent struct {
	writer io.Writer
}

// New creates a new printer agent.
func New() *Agent {
	return &Agent{writer: os.Stdout}
}

// NewWithWriter creates a printer agent writing to the supplied writer.
func NewWithWriter(writer io.Writer) *Agent {
	return &Agent{writer: writer}
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return name
}

// Execute prints the resolved input and passes it through unchanged.
func (a *Agent) Execute(_ context.Context, execCtx *agent.Context) (*agent.Response, error) {
	switch actual := execCtx.Input.(type) {
	case string:
		fmt.Fprintln(a.writer, actual)
	default:
		fmt.Fprintf(a.writer, "%v\n", actual)
	}
	return &agent.Response{Data: execCtx.Input}, nil
}
