package eventlog

import (
	"fmt"
	"io"
	"os"
)

// StdoutSink mirrors entries to a writer in the single-line console form.
type StdoutSink struct {
	out io.Writer
}

// NewStdoutSink writes to os.Stdout unless another writer is given.
func NewStdoutSink(out io.Writer) *StdoutSink {
	if out == nil {
		out = os.Stdout
	}
	return &StdoutSink{out: out}
}

// Write implements Sink.
func (s *StdoutSink) Write(entry Entry) error {
	_, err := fmt.Fprintln(s.out, entry.String())
	return err
}
