package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"dcsourcing/internal/config"
)

// New builds the process logger from the logging section of cfg. Unknown
// levels fall back to info.
func New(cfg config.Config) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Logging.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "dcsourcing").Logger()
}
