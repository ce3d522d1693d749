package diag

import (
	"github.com/peterebden/go-deferred-regex"
)

// IDEs such as Visual Studio treat the first word of a diagnostic as its location and make it
// clickable. Normally that word is the tool name, which sends the user off to a binary editor,
// so in IDE mode we print a source location extracted from the message instead:
//
//	src/foo.c(35): error: ...
//
// The location is found by trying each of these in turn; the first match wins.
var locationMatchers = []*deferredregex.DeferredRegex{
	{Re: `^undefined (?:\S+ )?symbol:.*\n>>> referenced by (\S+):(\d+)\n.*`},
	{Re: `^undefined symbol:.*\n>>> referenced by (.*):`},
	{Re: `^duplicate symbol: .*\n>>> defined in (\S+)\n>>> defined in.*`},
	{Re: `^duplicate symbol: .*\n>>> defined at (\S+):(\d+).*`},
	{Re: `.*\n>>> defined in .*\n>>> referenced by (\S+):(\d+)`},
	{Re: `(\S+):(\d+): unclosed quote`},
}

// duplicateSymbol matches a duplicate symbol error with exactly two definition sites.
var duplicateSymbol = deferredregex.DeferredRegex{
	Re: `^(duplicate symbol: .*)(\n>>> defined at \S+:\d+\n>>>.*)(\n>>> defined at \S+:\d+\n>>>.*)$`,
}

// A location is what one of the matchers captured.
type location struct {
	Path string
	Line string // Empty if the matcher doesn't capture one.
}

// String formats the location the way IDEs expect, i.e. path(line).
func (l location) String() string {
	if l.Line == "" {
		return l.Path
	}
	return l.Path + "(" + l.Line + ")"
}

// findLocation returns the location captured by the first matcher that matches msg.
func findLocation(msg string) (location, bool) {
	for _, re := range locationMatchers {
		if match := re.FindStringSubmatch(msg); match != nil {
			if len(match) > 2 {
				return location{Path: match[1], Line: match[2]}, true
			}
			return location{Path: match[1]}, true
		}
	}
	return location{}, false
}

// Location returns the source location a diagnostic refers to, or def if we can't find one.
func Location(msg, def string) string {
	if loc, ok := findLocation(msg); ok {
		return loc.String()
	}
	return def
}

// splitDuplicateSymbol splits a duplicate symbol error into one message per definition site,
// so an IDE gets a separate entry for each of them.
func splitDuplicateSymbol(msg string) (string, string, bool) {
	match := duplicateSymbol.FindStringSubmatch(msg)
	if match == nil {
		return "", "", false
	}
	return match[1] + match[2], match[1] + match[3], true
}
