package diag

import (
	"io"

	"github.com/thought-machine/linkdiag/src/metrics"
)

// terminate exits the process with the given exit code after discarding any pending output
// artifact and running the exit handlers, then flushing our output.
// It must be called with the mutex held, and it never returns.
func (h *Handler) terminate(code int) {
	log.Debug("Terminating with exit code %d", code)
	if artifact := h.state.artifact; artifact != nil {
		// The artifact stays registered; discarding it twice is harmless.
		if err := artifact.Discard(); err != nil {
			log.Warning("Failed to discard output: %s", err)
		}
	}
	metrics.RecordTermination(code)
	h.shutdown()
	flush(h.stdout)
	flush(h.stderr)
	h.exit(code)
}

// A flusher is a writer with buffered output, e.g. a *bufio.Writer.
type flusher interface {
	Flush() error
}

// flush flushes w if it buffers anything. Files are unbuffered so have nothing to flush.
func flush(w io.Writer) {
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			log.Warning("Failed to flush output: %s", err)
		}
	}
}
