// Package cli contains helper functions related to flag parsing and logging.
package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	cli "github.com/peterebden/go-cli-init/v5/flags"
	"github.com/thought-machine/go-flags"
)

// GiByte is a re-export for convenience of other things using it.
const GiByte = humanize.GiByte

// ParseFlagsOrDie parses the app's flags and dies if unsuccessful.
// Also dies if any unexpected arguments are passed.
// It returns the active command if there is one.
func ParseFlagsOrDie(appname string, data interface{}) string {
	return cli.ParseFlagsOrDie(appname, data, nil)
}

// ParseFlags parses the app's flags and returns the parser, any extra arguments, and any error encountered.
// It may exit if certain options are encountered (eg. --help).
func ParseFlags(appname string, data interface{}, args []string) (*flags.Parser, []string, error) {
	return cli.ParseFlags(appname, data, args, flags.HelpFlag|flags.PassDoubleDash, nil, nil)
}

// A ByteSize is used for flags that represent some quantity of bytes that can be
// passed as human-readable quantities (eg. "10G").
type ByteSize uint64

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (b *ByteSize) UnmarshalFlag(in string) error {
	b2, err := humanize.ParseBytes(in)
	*b = ByteSize(b2)
	return flagsError(err)
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.UnmarshalFlag(string(text))
}

// String implements the fmt.Stringer interface
func (b ByteSize) String() string {
	return humanize.Bytes(uint64(b))
}

// A Duration is used for flags that represent a time duration; it's just a wrapper
// around time.Duration that implements the flags.Unmarshaler and
// encoding.TextUnmarshaler interfaces.
type Duration = cli.Duration

// A URL is an http or https address in a flag or config field, e.g. of a pushgateway.
type URL string

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (u *URL) UnmarshalFlag(in string) error {
	parsed, err := url.Parse(in)
	if err != nil {
		return flagsError(err)
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return flagsError(fmt.Errorf("URL %s must be http or https", in))
	} else if parsed.Host == "" {
		return flagsError(fmt.Errorf("URL %s has no host", in))
	}
	*u = URL(in)
	return nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (u *URL) UnmarshalText(text []byte) error {
	return u.UnmarshalFlag(string(text))
}

// String implements the fmt.Stringer interface
func (u URL) String() string {
	return string(u)
}

// A ColourMode decides whether diagnostics are coloured.
type ColourMode string

// The colour modes we accept.
const (
	ColourAuto   ColourMode = "auto"
	ColourAlways ColourMode = "always"
	ColourNever  ColourMode = "never"
)

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (c *ColourMode) UnmarshalFlag(in string) error {
	switch mode := ColourMode(strings.ToLower(in)); mode {
	case ColourAuto, ColourAlways, ColourNever:
		*c = mode
		return nil
	}
	return flagsError(fmt.Errorf("Unknown colour mode %s (should be one of auto, always, never)", in))
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (c *ColourMode) UnmarshalText(text []byte) error {
	return c.UnmarshalFlag(string(text))
}

// Enabled returns true if output to stderr should be coloured.
func (c ColourMode) Enabled() bool {
	switch c {
	case ColourAlways:
		return true
	case ColourNever:
		return false
	}
	return StdErrIsATerminal
}

// flagsError converts an error to a flags.Error, which is required for flag parsing.
func flagsError(err error) error {
	if err == nil {
		return nil
	}
	return &flags.Error{Type: flags.ErrMarshal, Message: err.Error()}
}

// A Filepath implements completion for file paths.
// This is distinct from upstream's in that it knows about completing into directories.
type Filepath string

// Complete implements the flags.Completer interface.
func (f *Filepath) Complete(match string) []flags.Completion {
	matches, _ := filepath.Glob(match + "*")
	// If there's exactly one match and it's a directory, take its contents instead.
	if len(matches) == 1 {
		if info, err := os.Stat(matches[0]); err == nil && info.IsDir() {
			matches, _ = filepath.Glob(matches[0] + "/*")
		}
	}
	ret := make([]flags.Completion, len(matches))
	for i, match := range matches {
		ret[i].Item = match
	}
	return ret
}

// Filepaths is a convenience type that is a list of file paths that knows how to convert itself to strings.
type Filepaths []Filepath

// AsStrings returns this slice of filepaths as a slice of strings.
func (f Filepaths) AsStrings() []string {
	ret := make([]string, len(f))
	for i, fp := range f {
		ret[i] = string(fp)
	}
	return ret
}
