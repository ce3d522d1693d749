// Package replay feeds streams of diagnostics recorded by link workers back through a
// diagnostic handler, replaying several streams concurrently.
//
// Each stream is a file of JSON objects, one per line:
//
//	{"severity": "error", "message": "undefined symbol: foo\n>>> referenced by a.c:10", "fatal": false}
//
// Blank lines are ignored.
package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/thought-machine/linkdiag/src/cli/logging"
	"github.com/thought-machine/linkdiag/src/diag"
)

var log = logging.Log

// Stdin is the name of the stream that is read from standard input.
const Stdin = "-"

// maxRecordSize is the longest line we'll accept in a stream.
const maxRecordSize = 16 * 1024 * 1024

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin

// A Handler is what records are replayed into; normally a *diag.Handler.
type Handler interface {
	Dispatch(d diag.Diagnostic)
	Fatal(text string)
}

// A Record is a single diagnostic within a stream.
// A record with no severity is an error.
type Record struct {
	Sev   diag.Severity `json:"severity"`
	Text  string        `json:"message"`
	Fatal bool          `json:"fatal,omitempty"`
}

// Severity implements the diag.Diagnostic interface.
func (r Record) Severity() diag.Severity {
	return r.Sev
}

// Message implements the diag.Diagnostic interface.
func (r Record) Message() string {
	return r.Text
}

// A Summary counts what has been replayed. It's safe for concurrent use.
type Summary struct {
	// ID identifies this replay, so a summary can be matched up with our logs.
	ID      string
	Streams int
	counts  [diag.Note + 1]atomic.Int64
	fatal   atomic.Int64
}

// Count returns the number of records of the given severity that were replayed.
func (s *Summary) Count(sev diag.Severity) int {
	if sev < diag.Error || sev > diag.Note {
		return 0
	}
	return int(s.counts[sev].Load())
}

// Fatal returns the number of fatal records that were replayed.
func (s *Summary) Fatal() int {
	return int(s.fatal.Load())
}

// Total returns the number of records replayed.
func (s *Summary) Total() int {
	total := s.Fatal()
	for i := range s.counts {
		total += int(s.counts[i].Load())
	}
	return total
}

func (s *Summary) add(r Record) {
	if r.Fatal {
		s.fatal.Add(1)
	} else if r.Sev >= diag.Error && r.Sev <= diag.Note {
		s.counts[r.Sev].Add(1)
	} else {
		s.counts[diag.Error].Add(1) // The handler reports these as errors too.
	}
}

// WriteTo writes a human-readable version of the summary to w.
func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	var total int64
	if s.ID != "" {
		n, err := fmt.Fprintf(w, "id: %s\n", s.ID)
		if err != nil {
			return int64(n), err
		}
		total += int64(n)
	}
	n, err := fmt.Fprintf(w, "streams: %s\n", humanize.Comma(int64(s.Streams)))
	total += int64(n)
	for sev := diag.Error; sev <= diag.Note && err == nil; sev++ {
		n, err = fmt.Fprintf(w, "%s: %s\n", sev, humanize.Comma(int64(s.Count(sev))))
		total += int64(n)
	}
	if err == nil {
		n, err = fmt.Fprintf(w, "fatal: %s\n", humanize.Comma(int64(s.Fatal())))
		total += int64(n)
	}
	return total, err
}

// Replay replays the given streams into the handler, with up to parallelism of them at once.
// Records within one stream are replayed in order; there's no ordering between streams.
// Problems reading the streams are returned together once everything else has been replayed.
func Replay(h Handler, filenames []string, parallelism int) (*Summary, error) {
	if err := checkStdin(filenames); err != nil {
		return nil, err
	}
	s := &Summary{ID: uuid.NewString(), Streams: len(filenames)}
	log.Debug("Replaying %d streams as %s", len(filenames), s.ID)
	var g errgroup.Group
	g.SetLimit(parallelism)
	var mutex sync.Mutex
	var errs *multierror.Error
	for _, filename := range filenames {
		filename := filename
		g.Go(func() error {
			if err := replayFile(h, s, filename); err != nil {
				mutex.Lock()
				defer mutex.Unlock()
				errs = multierror.Append(errs, err)
			}
			return nil
		})
	}
	g.Wait()
	return s, errs.ErrorOrNil()
}

// checkStdin makes sure we don't try to read stdin twice.
func checkStdin(filenames []string) error {
	seen := false
	for _, filename := range filenames {
		if filename == Stdin {
			if seen {
				return fmt.Errorf("repeated %s in streams; can't reread stdin", Stdin)
			}
			seen = true
		}
	}
	return nil
}

func replayFile(h Handler, s *Summary, filename string) error {
	if filename == Stdin {
		log.Debug("Replaying diagnostics from stdin")
		return replayStream(h, s, "<stdin>", stdin)
	}
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open diagnostic stream: %w", err)
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil {
		log.Debug("Replaying diagnostics from %s (%s)", filename, humanize.Bytes(uint64(info.Size())))
	}
	return replayStream(h, s, filename, f)
}

// replayStream replays every record in r. Malformed records are skipped and reported
// in the returned error, after the rest of the stream has been replayed.
func replayStream(h Handler, s *Summary, name string, r io.Reader) error {
	var errs *multierror.Error
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for line := 1; scanner.Scan(); line++ {
		b := scanner.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(b, &record); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s:%d: invalid record: %w", name, line, err))
			continue
		}
		s.add(record)
		if record.Fatal {
			h.Fatal(record.Text)
		} else {
			h.Dispatch(record)
		}
	}
	if err := scanner.Err(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to read %s: %w", name, err))
	}
	return errs.ErrorOrNil()
}
