package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the process logs.
type Options struct {
	Level      string // "debug" | "info" | "warn" | "error"
	File       string // optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	JSON       bool // plain JSON on stderr instead of the console writer
}

// Setup configures the global zerolog logger and returns it.
// The console always receives output; when File is set a rotating file
// receives the same events as JSON.
func Setup(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), err
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer
	if opts.JSON {
		console = os.Stderr
	} else {
		console = zerolog.ConsoleWriter{
			Out:        colorable.NewColorableStderr(),
			TimeFormat: time.RFC3339,
		}
	}

	writers := []io.Writer{console}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return zerolog.Nop(), err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
