package diag

import (
	"fmt"

	"github.com/thought-machine/linkdiag/src/cli"
)

// A Severity is the classification an upstream component gave a diagnostic.
type Severity int

// The severities we know how to dispatch.
const (
	Error Severity = iota
	Warning
	Remark
	Note
)

var severityNames = [...]string{
	Error:   "error",
	Warning: "warning",
	Remark:  "remark",
	Note:    "note",
}

// String implements the fmt.Stringer interface
func (s Severity) String() string {
	if s < Error || s > Note {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (s *Severity) UnmarshalText(text []byte) error {
	for i, name := range severityNames {
		if name == string(text) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q%s", text, cli.DidYouMean(string(text), severityNames[:], 2))
}

// A Diagnostic is something that has already been classified and rendered elsewhere.
type Diagnostic interface {
	Severity() Severity
	Message() string
}

// Info is the simplest implementation of Diagnostic.
type Info struct {
	Sev  Severity
	Text string
}

// Severity implements the Diagnostic interface.
func (i Info) Severity() Severity {
	return i.Sev
}

// Message implements the Diagnostic interface.
func (i Info) Message() string {
	return i.Text
}
