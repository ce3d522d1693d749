package replay

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thought-machine/linkdiag/src/diag"
)

type fakeHandler struct {
	mutex   sync.Mutex
	records map[diag.Severity][]string
	fatal   []string
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{records: map[diag.Severity][]string{}}
}

func (h *fakeHandler) Dispatch(d diag.Diagnostic) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.records[d.Severity()] = append(h.records[d.Severity()], d.Message())
}

func (h *fakeHandler) Fatal(text string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.fatal = append(h.fatal, text)
}

func TestReplayStream(t *testing.T) {
	h := newFakeHandler()
	s := &Summary{}
	err := replayStream(h, s, "test", strings.NewReader(`{"severity": "error", "message": "one"}
{"severity": "error", "message": "two"}

{"severity": "warning", "message": "three"}
{"message": "four"}
`))
	assert.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "four"}, h.records[diag.Error])
	assert.Equal(t, []string{"three"}, h.records[diag.Warning])
	assert.Equal(t, 3, s.Count(diag.Error))
	assert.Equal(t, 1, s.Count(diag.Warning))
	assert.Equal(t, 4, s.Total())
}

func TestReplayFatal(t *testing.T) {
	h := newFakeHandler()
	s := &Summary{}
	err := replayStream(h, s, "test", strings.NewReader(`{"severity": "error", "message": "cannot open a.o", "fatal": true}`))
	assert.NoError(t, err)
	assert.Equal(t, []string{"cannot open a.o"}, h.fatal)
	assert.Empty(t, h.records)
	assert.Equal(t, 1, s.Fatal())
	assert.Equal(t, 0, s.Count(diag.Error))
}

func TestReplayInvalidRecords(t *testing.T) {
	h := newFakeHandler()
	s, err := Replay(h, []string{"test_data/invalid.jsonl"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid.jsonl:2: invalid record")
	assert.Contains(t, err.Error(), "invalid.jsonl:3: invalid record")
	// The valid records either side are still replayed.
	assert.Equal(t, []string{"first"}, h.records[diag.Error])
	assert.Equal(t, []string{"last"}, h.records[diag.Warning])
	assert.Equal(t, 2, s.Total())
}

func TestReplayFiles(t *testing.T) {
	h := newFakeHandler()
	s, err := Replay(h, []string{"test_data/worker1.jsonl", "test_data/worker2.jsonl"}, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, s.Streams)
	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"undefined symbol: foo\n>>> referenced by a.c:10\n>>>               a.o:(.text+0x5)",
		"duplicate symbol: S\n>>> defined in a.o\n>>> defined in b.o",
	}, h.records[diag.Error])
	assert.Equal(t, []string{"section .foo has no flags"}, h.records[diag.Warning])
	assert.Equal(t, []string{"3 sections discarded"}, h.records[diag.Remark])
	assert.Equal(t, []string{"linking a.out"}, h.records[diag.Note])
	assert.Equal(t, 2, s.Count(diag.Error))
	assert.Equal(t, 5, s.Total())
}

func TestReplayMissingFile(t *testing.T) {
	h := newFakeHandler()
	s, err := Replay(h, []string{"test_data/doesnt_exist.jsonl", "test_data/worker2.jsonl"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doesnt_exist.jsonl")
	assert.Equal(t, 2, s.Total())
}

func TestReplayStdin(t *testing.T) {
	stdin = strings.NewReader(`{"severity": "note", "message": "from stdin"}`)
	defer func() { stdin = os.Stdin }()
	h := newFakeHandler()
	_, err := Replay(h, []string{Stdin}, 1)
	assert.NoError(t, err)
	assert.Equal(t, []string{"from stdin"}, h.records[diag.Note])
}

func TestReplayRepeatedStdin(t *testing.T) {
	_, err := Replay(newFakeHandler(), []string{Stdin, "test_data/worker1.jsonl", Stdin}, 1)
	assert.Error(t, err)
}

func TestReplayIntoHandler(t *testing.T) {
	var stdout, stderr bytes.Buffer
	h := diag.New(diag.Config{ToolName: "ld.lld", IDELocations: true}, &stdout, &stderr)
	s, err := Replay(h, []string{"test_data/worker1.jsonl"}, 1)
	assert.NoError(t, err)
	assert.Equal(t, "ld.lld: warning: section .foo has no flags\n"+
		"a.c(10): error: undefined symbol: foo\n>>> referenced by a.c:10\n>>>               a.o:(.text+0x5)\n", stderr.String())
	assert.Equal(t, "linking a.out\n", stdout.String())
	assert.Equal(t, 1, h.ErrorCount())
	assert.Equal(t, 3, s.Total())
}

func TestReplayManyStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	h := diag.New(diag.Config{ToolName: "ld.lld"}, &stdout, &stderr)
	filenames := make([]string, 20)
	for i := range filenames {
		filenames[i] = "test_data/worker2.jsonl"
	}
	s, err := Replay(h, filenames, 4)
	assert.NoError(t, err)
	assert.Equal(t, 20, h.ErrorCount())
	assert.Equal(t, 20, s.Count(diag.Remark))
	assert.Equal(t, 20, strings.Count(stderr.String(), "ld.lld: error: duplicate symbol: S\n>>> defined in a.o\n>>> defined in b.o\n"))
}

func TestSummaryWriteTo(t *testing.T) {
	s := &Summary{Streams: 2}
	s.add(Record{Sev: diag.Error})
	s.add(Record{Sev: diag.Warning})
	s.add(Record{Sev: diag.Warning})
	s.add(Record{Sev: diag.Error, Fatal: true})
	s.add(Record{Sev: diag.Severity(9)})
	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	assert.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)
	assert.Equal(t, "streams: 2\nerror: 2\nwarning: 2\nremark: 0\nnote: 0\nfatal: 1\n", buf.String())
}

func TestSummaryWriteToWithID(t *testing.T) {
	s := &Summary{ID: "0b6e1c4e-2f3a-4f57-9d53-3c6f8f0c1a2b", Streams: 1}
	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "id: 0b6e1c4e-2f3a-4f57-9d53-3c6f8f0c1a2b\nstreams: 1\n"))
}
