package main

import (
	"bufio"
	"os"

	"github.com/thought-machine/linkdiag/src/cli"
	"github.com/thought-machine/linkdiag/src/cli/logging"
	"github.com/thought-machine/linkdiag/src/core"
	"github.com/thought-machine/linkdiag/src/diag"
	"github.com/thought-machine/linkdiag/src/fs"
	"github.com/thought-machine/linkdiag/src/metrics"
	"github.com/thought-machine/linkdiag/src/replay"
)

var log = logging.Log

var opts struct {
	Verbosity    cli.Verbosity     `short:"v" long:"verbosity" default:"warning" description:"Verbosity of our own logging (error, warning, notice, info, debug)"`
	LogFile      string            `long:"log_file" description:"File to echo full logging output to"`
	LogFileLevel cli.Verbosity     `long:"log_file_level" default:"debug" description:"Log level for file output"`
	LogAppend    bool              `long:"log_append" description:"Append log to existing file instead of overwriting its content."`
	Config       []string          `short:"c" long:"config" description:"Config files to read, in place of the default ones"`
	Override     map[string]string `long:"override" description:"Options to override from .linkdiagconfig (e.g. --override diagnostics.errorlimit:0)"`
	Output       string            `short:"o" long:"output" description:"File to write a summary of the replayed diagnostics to. Only written if there were no errors."`
	NumThreads   int               `short:"n" long:"num_threads" description:"Number of streams to replay concurrently"`

	ToolName      string `long:"tool_name" description:"Name prefixed to each diagnostic"`
	ErrorLimit    int    `long:"error_limit" default:"-1" description:"Maximum number of errors to print, 0 for unlimited. Defaults to the config setting."`
	ExitOnLimit   bool   `long:"exit_on_limit" description:"Stop as soon as the error limit is exceeded"`
	FatalWarnings bool   `long:"fatal_warnings" description:"Treat warnings as errors"`
	IDE           bool   `long:"ide" description:"Prefix diagnostics with source locations for an IDE"`
	Verbose       bool   `long:"verbose_diagnostics" description:"Print log lines from the streams as well as diagnostics"`
	Colour        bool   `long:"colour" description:"Forces coloured diagnostics"`
	NoColour      bool   `long:"nocolour" description:"Forces colourless diagnostics"`

	Args struct {
		Streams cli.Filepaths `positional-arg-name:"streams" required:"true" description:"Diagnostic streams to replay. - reads from stdin."`
	} `positional-args:"true" required:"true"`
}

// readConfig reads the config files and applies any overrides from the command line.
func readConfig() *core.Configuration {
	filenames := core.ConfigFiles()
	if len(opts.Config) > 0 {
		filenames = opts.Config
	}
	config, err := core.ReadConfigFiles(filenames)
	if err != nil {
		log.Fatalf("Error reading config file: %s", err)
	}
	if err := config.ApplyOverrides(opts.Override); err != nil {
		log.Fatalf("Can't override requested config setting: %s", err)
	}
	applyFlags(config)
	return config
}

// applyFlags applies the dedicated flags, which take precedence over everything in the config files.
func applyFlags(config *core.Configuration) {
	if opts.ToolName != "" {
		config.Diagnostics.ToolName = opts.ToolName
	}
	if opts.ErrorLimit >= 0 {
		config.Diagnostics.ErrorLimit = opts.ErrorLimit
	}
	if opts.NumThreads > 0 {
		config.Replay.NumThreads = opts.NumThreads
	}
	if opts.Colour {
		config.Diagnostics.Colour = cli.ColourAlways
	} else if opts.NoColour {
		config.Diagnostics.Colour = cli.ColourNever
	}
	config.Diagnostics.ExitOnLimit = config.Diagnostics.ExitOnLimit || opts.ExitOnLimit
	config.Diagnostics.WarningsAreErrors = config.Diagnostics.WarningsAreErrors || opts.FatalWarnings
	config.Diagnostics.IDELocations = config.Diagnostics.IDELocations || opts.IDE
	config.Diagnostics.Verbose = config.Diagnostics.Verbose || opts.Verbose
}

// diagConfig converts the diagnostics section of the config to what the handler wants.
func diagConfig(config *core.Configuration) diag.Config {
	return diag.Config{
		ToolName:          config.Diagnostics.ToolName,
		ErrorLimit:        config.Diagnostics.ErrorLimit,
		ExitOnLimit:       config.Diagnostics.ExitOnLimit,
		Colour:            config.Diagnostics.Colour.Enabled(),
		IDELocations:      config.Diagnostics.IDELocations,
		Verbose:           config.Diagnostics.Verbose,
		WarningsAreErrors: config.Diagnostics.WarningsAreErrors,
		LimitExceededText: config.Diagnostics.LimitExceededText,
	}
}

// openOutput creates the pending summary file and makes sure it's thrown away if we don't get
// as far as committing it, including when we're killed by a signal.
func openOutput(h *diag.Handler, filename string, maxSize uint64) *fs.PendingFile {
	f, err := fs.NewPendingFile(filename, 0644, maxSize)
	h.Check(err)
	h.SetOutputArtifact(f)
	cli.AtExit(func() {
		if err := f.Discard(); err != nil {
			log.Warning("Failed to discard %s: %s", f.Name(), err)
		}
	})
	return f
}

// writeSummary writes the summary to the output file and commits it.
func writeSummary(h *diag.Handler, f *fs.PendingFile, s *replay.Summary) {
	_, err := s.WriteTo(f)
	h.Check(err)
	h.Check(f.Commit())
	h.SetOutputArtifact(nil)
	log.Notice("Wrote summary of %d diagnostics to %s", s.Total(), f.Name())
}

func main() {
	cli.ParseFlagsOrDie("linkdiag", &opts)
	cli.InitLogging(opts.Verbosity)
	if opts.LogFile != "" {
		if err := cli.InitFileLogging(opts.LogFile, opts.LogFileLevel, opts.LogAppend); err != nil {
			log.Fatalf("Error opening log file: %s", err)
		}
	}
	config := readConfig()
	metrics.InitFromConfig(config)
	cli.AtExit(metrics.Stop)

	h := diag.New(diagConfig(config), bufio.NewWriter(os.Stdout), os.Stderr)
	var output *fs.PendingFile
	if opts.Output != "" {
		output = openOutput(h, opts.Output, uint64(config.Output.MaxSize))
	}

	summary, err := replay.Replay(h, opts.Args.Streams.AsStrings(), config.Replay.NumThreads)
	h.CheckError(err)
	if h.ErrorCount() > 0 {
		log.Info("%d errors reported", h.ErrorCount())
		h.Exit(1)
	}
	if output != nil {
		writeSummary(h, output, summary)
	}
	h.Exit(0)
}
