package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"chairgate/pkg/model"
)

// Sink is where decoded records go.
type Sink interface {
	Write(ctx context.Context, rec model.Record) error
}

// ConsoleSink prints each record on its own line. It is the passive log
// consumer of the stream path and is safe for concurrent connections.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink writes to w, or to stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

func (c *ConsoleSink) Write(_ context.Context, rec model.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "Parsed record: %s\n", rec)
	return err
}
