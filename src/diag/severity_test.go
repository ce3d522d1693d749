package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "warning", Warning.String())
	assert.Equal(t, "remark", Remark.String())
	assert.Equal(t, "note", Note.String())
	assert.Equal(t, "severity(7)", Severity(7).String())
}

func TestSeverityUnmarshalText(t *testing.T) {
	var s Severity
	assert.NoError(t, s.UnmarshalText([]byte("remark")))
	assert.Equal(t, Remark, s)
	assert.NoError(t, s.UnmarshalText([]byte("error")))
	assert.Equal(t, Error, s)
	assert.Error(t, s.UnmarshalText([]byte("fatal")))
}

func TestDispatchUnknownSeverity(t *testing.T) {
	h, stdout, stderr := newHandler(Config{})
	h.Dispatch(Info{Sev: Severity(12), Text: "mystery"})
	assert.Equal(t, "ld.lld: error: mystery\n", stderr.String())
	assert.Equal(t, "", stdout.String())
	assert.Equal(t, 1, h.ErrorCount())
}

func TestSeverityUnmarshalTextSuggestion(t *testing.T) {
	var s Severity
	assert.EqualError(t, s.UnmarshalText([]byte("warnign")), `unknown severity "warnign" (did you mean warning?)`)
}
