package diag

import (
	"io"
	"strings"
)

// A lineBreakTracker remembers whether the last warning or error spanned several lines,
// in which case the next one is separated from it by a blank line.
// It is not safe for concurrent use; the handler's lock guards it.
type lineBreakTracker struct {
	pending bool
}

// separate writes the separating line if one is owed, then records whether msg owes one.
func (t *lineBreakTracker) separate(w io.Writer, msg string) {
	if t.pending {
		io.WriteString(w, "\n")
	}
	t.pending = strings.Contains(msg, "\n")
}
