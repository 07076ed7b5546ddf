// Package logging builds the process logger: JSON records on stderr,
// optionally teed to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/jkaninda/mlinzi/internal/config"
)

// Default rotation settings.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// New returns a logger writing to stderr and, when cfg names a file, to a
// rotating log file as well. The returned closer releases the file; it is
// never nil.
func New(cfg *config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if cfg != nil {
		l, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		level = l
	}

	out := stderr
	var closer io.Closer = nopCloser{}
	if cfg != nil && cfg.File != "" {
		file := &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(stderr, file)
		closer = file
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// ParseLevel maps a config level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return slog.LevelInfo, nil
	case strings.EqualFold(s, "warning"):
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parsing log level %q: %w", s, err)
	}
	return level, nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
