package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging installs the global logger. format "json" writes plain JSON
// lines; anything else uses the console writer. An unknown level leaves
// the current level in place.
func SetupLogging(level, format string) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if strings.EqualFold(format, "json") {
		out = os.Stderr
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Debug().Str("level", zerolog.GlobalLevel().String()).Str("format", format).Msg("log level configured")
}
