// Package logging constructs the shared zerolog.Logger passed into the
// exchange's components. zerolog follows saiputravu-Exchange; the logger
// is injected through constructors rather than read from a global.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a console-friendly zerolog.Logger writing to stderr.
func New() zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(output).With().Timestamp().Logger()
}
