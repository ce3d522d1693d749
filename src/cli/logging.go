// Contains various utility functions related to logging.

package cli

import (
	"os"
	"sync"

	cli "github.com/peterebden/go-cli-init/v5/logging"
	"github.com/peterebden/go-deferred-regex"
	"golang.org/x/term"
	"gopkg.in/op/go-logging.v1"

	logger "github.com/thought-machine/linkdiag/src/cli/logging"
	"github.com/thought-machine/linkdiag/src/fs"
)

var log = logger.Log

// StdErrIsATerminal is true if the process' stderr is an interactive TTY.
var StdErrIsATerminal = IsATerminal(os.Stderr)

// StripAnsi is a regex to find & replace ANSI console escape sequences.
var StripAnsi = deferredregex.DeferredRegex{Re: "\x1b[^m]+m"}

// logLevel is the current verbosity level that is set.
var logLevel = logging.WARNING

var fileLogLevel = logging.WARNING
var fileBackend logging.Backend

// backendMutex guards swapping of the backends above.
var backendMutex sync.Mutex

// A Verbosity is used as a flag to define logging verbosity.
type Verbosity = cli.Verbosity

// InitLogging initialises logging backends.
func InitLogging(verbosity Verbosity) {
	backendMutex.Lock()
	defer backendMutex.Unlock()
	logLevel = logging.Level(verbosity)
	setLogBackend(logging.NewLogBackend(os.Stderr, "", 0))
}

// InitFileLogging initialises an optional logging backend to a file.
// The file is closed by the exit handlers, so anything logged during termination still lands in it.
func InitFileLogging(logFile string, logFileLevel Verbosity, append bool) error {
	if err := fs.EnsureDir(logFile); err != nil {
		return err
	}
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if append {
		flags = os.O_RDWR | os.O_CREATE | os.O_APPEND
	}
	file, err := os.OpenFile(logFile, flags, 0666)
	if err != nil {
		return err
	}
	backendMutex.Lock()
	defer backendMutex.Unlock()
	fileLogLevel = logging.Level(logFileLevel)
	fileBackend = logging.NewBackendFormatter(logging.NewLogBackend(file, "", 0), logFormatter(false))
	setLogBackend(logging.NewLogBackend(os.Stderr, "", 0))
	AtExit(func() {
		backendMutex.Lock()
		defer backendMutex.Unlock()
		fileBackend = nil
		setLogBackend(logging.NewLogBackend(os.Stderr, "", 0))
		file.Close()
	})
	return nil
}

func logFormatter(coloured bool) logging.Formatter {
	formatStr := "%{time:15:04:05.000} %{level:7s}: %{message}"
	if coloured {
		formatStr = "%{color}" + formatStr + "%{color:reset}"
	}
	return logging.MustStringFormatter(formatStr)
}

func setLogBackend(backend logging.Backend) {
	backend = logging.NewBackendFormatter(backend, logFormatter(StdErrIsATerminal))
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(logLevel, "")
	if fileBackend == nil {
		log.SetBackend(leveled)
		return
	}
	fileBackendLeveled := logging.AddModuleLevel(fileBackend)
	fileBackendLeveled.SetLevel(fileLogLevel, "")
	log.SetBackend(logging.AddModuleLevel(logging.MultiLogger(leveled, fileBackendLeveled)))
}

// HTTPLogWrapper adapts one of our loggers to the LeveledLogger interface from retryablehttp.
// Its info messages are only interesting when debugging, so they're logged at debug level.
type HTTPLogWrapper struct {
	Log *logging.Logger
}

// Error logs at error level
func (w *HTTPLogWrapper) Error(msg string, keysAndValues ...interface{}) {
	w.Log.Errorf("%v: %v", msg, keysAndValues)
}

// Warn logs at warning level
func (w *HTTPLogWrapper) Warn(msg string, keysAndValues ...interface{}) {
	w.Log.Warningf("%v: %v", msg, keysAndValues)
}

// Info logs at debug level
func (w *HTTPLogWrapper) Info(msg string, keysAndValues ...interface{}) {
	w.Log.Debugf("%v: %v", msg, keysAndValues)
}

// Debug logs at debug level
func (w *HTTPLogWrapper) Debug(msg string, keysAndValues ...interface{}) {
	w.Log.Debugf("%v: %v", msg, keysAndValues)
}

// IsATerminal returns true if the given file is an interactive TTY.
func IsATerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}
