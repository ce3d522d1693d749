// Package logging holds the logger shared by every linkdiag package.
// Its backends and levels are set up by the cli package.
package logging

import "gopkg.in/op/go-logging.v1"

// Log is what we log our own progress through. Diagnostics themselves never go through it.
var Log = logging.MustGetLogger("linkdiag")
