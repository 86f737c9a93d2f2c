// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/dkeye/Relay/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup installs a global logger for cfg and returns it. Console output goes
// to stderr unless a file is configured, in which case it is rotated.
func Setup(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	logger := New(out, cfg.Format, level)
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return logger, nil
}

// New builds a logger writing to out. Console format is human friendly;
// anything else is JSON.
func New(out io.Writer, format string, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: out != os.Stderr}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
