package fs

import (
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/thought-machine/linkdiag/src/cli/logging"
)

var log = logging.Log

// A PendingFile is an output artifact that is written to a temporary file alongside its final
// destination, and only moved into place when it's committed. Until then it can be discarded,
// which leaves nothing behind.
// All functions on it are threadsafe.
type PendingFile struct {
	to      string
	mode    os.FileMode
	maxSize uint64

	mutex   sync.Mutex
	file    *os.File
	written uint64
	done    bool
}

// NewPendingFile creates a new pending file that will end up at 'to'.
// If maxSize is nonzero, writes beyond that many bytes fail.
func NewPendingFile(to string, mode os.FileMode, maxSize uint64) (*PendingFile, error) {
	if FileExists(to) {
		log.Debug("Removing stale output %s", to)
	}
	if err := os.RemoveAll(to); err != nil {
		return nil, err
	} else if err := EnsureDir(to); err != nil {
		return nil, err
	}
	dir, file := path.Split(to)
	if dir == "" {
		dir = "."
	}
	tempFile, err := os.CreateTemp(dir, file)
	if err != nil {
		return nil, err
	}
	if mode == 0 {
		mode = 0664
	}
	return &PendingFile{to: to, mode: mode, maxSize: maxSize, file: tempFile}, nil
}

// Name returns the final name of this file.
func (p *PendingFile) Name() string {
	return p.to
}

// Write implements the io.Writer interface.
func (p *PendingFile) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.done {
		return 0, fmt.Errorf("write to %s after it was committed or discarded", p.to)
	} else if p.maxSize != 0 && p.written+uint64(len(b)) > p.maxSize {
		return 0, fmt.Errorf("%s would exceed the maximum output size of %s", p.to, humanize.Bytes(p.maxSize))
	}
	n, err := p.file.Write(b)
	p.written += uint64(n)
	return n, err
}

// Commit moves the file into its final location.
func (p *PendingFile) Commit() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.done {
		return fmt.Errorf("%s has already been committed or discarded", p.to)
	}
	p.done = true
	if err := p.file.Close(); err != nil {
		os.Remove(p.file.Name())
		return err
	}
	// OK, now file is written; adjust permissions appropriately.
	if err := os.Chmod(p.file.Name(), p.mode); err != nil {
		os.Remove(p.file.Name())
		return err
	}
	// And move it to its final destination.
	log.Debug("Writing %s of output to %s", humanize.Bytes(p.written), p.to)
	if err := os.Rename(p.file.Name(), p.to); err != nil {
		os.Remove(p.file.Name())
		return err
	}
	return nil
}

// Discard throws away anything written so far. It does nothing if the file is already committed
// or discarded, so it's safe to call on the way out regardless.
func (p *PendingFile) Discard() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.done {
		return nil
	}
	p.done = true
	log.Debug("Discarding %s of pending output for %s", humanize.Bytes(p.written), p.to)
	p.file.Close()
	return os.Remove(p.file.Name())
}
