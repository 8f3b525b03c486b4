// Package logging builds the zerolog logger shared by the server and the CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"archpipe/internal/config"
)

// New creates a logger from configuration. Console or JSON output goes to
// stderr; when a log file is configured, entries are also written to a rotated
// file. The returned closer releases the file sink and is never nil.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit console writer, used by tests
func NewWithWriter(cfg config.LoggingConfig, console io.Writer) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = console
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		closer = file
		out = zerolog.MultiLevelWriter(out, file)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
