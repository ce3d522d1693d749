// Package diag implements the diagnostic handler, which every warning, error and message
// produced anywhere in the link goes through.
//
// The handler can be called from any number of goroutines at once. Everything it prints is
// serialised by a single lock, so multi-line diagnostics never interleave, and it keeps count
// of errors so it can stop printing (and optionally stop the process) once there are too many.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/thought-machine/linkdiag/src/cli"
	"github.com/thought-machine/linkdiag/src/cli/logging"
	"github.com/thought-machine/linkdiag/src/core"
	"github.com/thought-machine/linkdiag/src/metrics"
)

var log = logging.Log

// Colours of the severity word in each header.
var (
	errorColour   = forcedColour(color.FgRed, color.Bold)
	warningColour = forcedColour(color.FgMagenta, color.Bold)
)

// forcedColour returns a colour that ignores the terminal detection in the color package;
// whether we colour or not is decided by Config.Colour.
func forcedColour(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// Config is the configuration of a Handler.
// It is set up once before any diagnostics are reported.
type Config struct {
	// ToolName prefixes every line, unless IDELocations is set.
	ToolName string
	// ErrorLimit is the number of errors printed in full. 0 means unlimited.
	ErrorLimit int
	// ExitOnLimit terminates the process as soon as ErrorLimit is exceeded.
	ExitOnLimit bool
	// Colour colours the severity word of each diagnostic.
	Colour bool
	// IDELocations prefixes each diagnostic with the source location it refers to.
	IDELocations bool
	// Verbose enables Log.
	Verbose bool
	// WarningsAreErrors reports every warning as an error.
	WarningsAreErrors bool
	// LimitExceededText is printed once, in place of the first error past the limit.
	// If empty, core.DefaultLimitExceededText is used.
	LimitExceededText string
}

// An Artifact is an output file that will need throwing away if we terminate early.
type Artifact interface {
	Discard() error
}

// state is everything about a Handler that changes as diagnostics are reported.
type state struct {
	errorCount   int
	limitNoticed bool
	newlines     lineBreakTracker
	artifact     Artifact
}

// A Handler reports diagnostics. All functions on it are threadsafe.
// It should be constructed via New() rather than creating an instance directly.
type Handler struct {
	mutex  sync.Mutex
	config Config
	state  state
	stdout io.Writer
	stderr io.Writer
	// These are replaced in tests; in production they run the exit handlers and exit the process.
	shutdown func()
	exit     func(code int)
}

// New creates a new Handler writing messages to stdout and everything else to stderr.
func New(config Config, stdout, stderr io.Writer) *Handler {
	return &Handler{
		config:   config,
		stdout:   stdout,
		stderr:   stderr,
		shutdown: cli.RunExitHandlers,
		exit:     os.Exit,
	}
}

// Configure replaces the handler's configuration.
// It's only safe to call this when nothing is being reported concurrently.
func (h *Handler) Configure(config Config) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.config = config
}

// Reset forgets all errors reported so far, and any registered artifact.
func (h *Handler) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.state = state{}
}

// ErrorCount returns the number of errors reported so far, including those that weren't printed.
func (h *Handler) ErrorCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state.errorCount
}

// SetOutputArtifact registers the output artifact that is discarded if we terminate.
// Pass nil once it has been committed.
func (h *Handler) SetOutputArtifact(artifact Artifact) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.state.artifact = artifact
}

// Log prints a line prefixed with the tool name, but only in verbose mode.
func (h *Handler) Log(text string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.config.Verbose {
		fmt.Fprintf(h.stderr, "%s: %s\n", h.config.ToolName, text)
	}
}

// Message prints some text verbatim to stdout, which is flushed immediately.
func (h *Handler) Message(text string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	fmt.Fprintln(h.stdout, text)
	flush(h.stdout)
}

// Warn reports a warning, or an error if warnings are errors.
func (h *Handler) Warn(text string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.config.WarningsAreErrors {
		h.error(text)
		return
	}
	h.state.newlines.separate(h.stderr, text)
	h.printHeader("warning: ", warningColour, text)
	fmt.Fprintln(h.stderr, text)
	metrics.Record(Warning.String(), true)
}

// Error reports an error. It's always counted, but once the error limit is exceeded it's not printed.
// If the handler is configured to exit on the limit, the error that exceeds it terminates the process.
func (h *Handler) Error(text string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.error(text)
}

// Fatal reports an error and then terminates the process with exit code 1.
func (h *Handler) Fatal(text string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.error(text)
	h.terminate(1)
}

// Check is a convenience that reports err as fatal if it's not nil.
func (h *Handler) Check(err error) {
	if err != nil {
		h.Fatal(err.Error())
	}
}

// Dispatch reports a diagnostic that has already been classified elsewhere.
func (h *Handler) Dispatch(d Diagnostic) {
	switch d.Severity() {
	case Error:
		h.Error(d.Message())
	case Warning:
		h.Warn(d.Message())
	case Remark, Note:
		h.Message(d.Message())
	default:
		log.Warning("Unknown diagnostic severity %s, reporting as an error", d.Severity())
		h.Error(d.Message())
	}
}

// Exit terminates the process with the given exit code, discarding any registered output artifact.
// It never returns.
func (h *Handler) Exit(code int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.terminate(code)
}

// error implements Error. It must be called with the mutex held.
func (h *Handler) error(text string) {
	n := h.state.errorCount
	h.state.errorCount++
	if h.config.ErrorLimit == 0 || n < h.config.ErrorLimit {
		h.printError(text)
		metrics.Record(Error.String(), true)
		return
	}
	metrics.Record(Error.String(), false)
	if n != h.config.ErrorLimit || h.state.limitNoticed {
		return
	}
	h.state.limitNoticed = true
	h.state.newlines.separate(h.stderr, text)
	h.printHeader("error: ", errorColour, text)
	fmt.Fprintln(h.stderr, h.limitExceededText())
	if h.config.ExitOnLimit {
		h.terminate(1)
	}
}

func (h *Handler) limitExceededText() string {
	if h.config.LimitExceededText == "" {
		return core.DefaultLimitExceededText
	}
	return h.config.LimitExceededText
}

// printError prints an error, splitting duplicate symbol errors in IDE mode.
func (h *Handler) printError(text string) {
	if h.config.IDELocations {
		if first, second, ok := splitDuplicateSymbol(text); ok {
			h.printErrorMsg(first)
			h.printErrorMsg(second)
			return
		}
	}
	h.printErrorMsg(text)
}

func (h *Handler) printErrorMsg(text string) {
	h.state.newlines.separate(h.stderr, text)
	h.printHeader("error: ", errorColour, text)
	fmt.Fprintln(h.stderr, text)
}

// printHeader prints everything on the line before the message itself.
func (h *Handler) printHeader(severity string, c *color.Color, text string) {
	if h.config.IDELocations {
		fmt.Fprintf(h.stderr, "%s: ", Location(text, h.config.ToolName))
	} else {
		fmt.Fprintf(h.stderr, "%s: ", h.config.ToolName)
	}
	if h.config.Colour {
		c.Fprint(h.stderr, severity)
	} else {
		io.WriteString(h.stderr, severity)
	}
}
