package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a JSON logger, or a human readable console logger when env is "dev".
func New(env string) zerolog.Logger {
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
