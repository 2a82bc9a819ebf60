// Package logger builds the structured logrus logger shared by every command
// and the entry helpers that tag runs, tiles and skipped sources.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string    // Log level (e.g., "info", "debug", "error")
	FilePath   string    // Rotated log file, no file when empty
	MaxSize    int       // MB before rotation
	MaxBackups int       // Rotated files to keep
	MaxAge     int       // Days to keep rotated files
	Compress   bool      // Gzip rotated files
	Console    bool      // Also log to ConsoleOut
	ConsoleOut io.Writer // Console destination, stderr when nil
}

// NewLogger returns a JSON logger writing to a rotated file, the console, or
// both. Without a file the console is always used. The console defaults to
// stderr because stdout carries the tile progress lines.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	out, err := outputFor(config)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(newFormatter())
	log.SetOutput(out)
	return log, nil
}

// Discard returns a logger that drops every entry. Components fall back to it
// when they are built without a logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// LevelFor resolves the effective level from the configured one and the
// --verbose and --quiet switches. quiet wins over verbose.
func LevelFor(level string, verbose, quiet bool) string {
	switch {
	case quiet:
		return "error"
	case verbose:
		return "debug"
	}
	return level
}

func newFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	}
}

func outputFor(config LoggerConfig) (io.Writer, error) {
	var writers []io.Writer

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	if config.Console || config.FilePath == "" {
		console := config.ConsoleOut
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, console)
	}

	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// WithOperation tags an entry with the run it belongs to: compress, resize,
// fetch or serve.
func WithOperation(log *logrus.Logger, operation string) *logrus.Entry {
	return log.WithField("operation", operation)
}

// WithRun returns an operation entry carrying the parameters of the run.
func WithRun(log *logrus.Logger, operation string, params logrus.Fields) *logrus.Entry {
	return WithOperation(log, operation).WithFields(params)
}

// WithTile returns an entry for a source that produced the tile dest.
func WithTile(log *logrus.Logger, source, dest string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"source": source,
		"tile":   dest,
	})
}

// WithSkip returns an entry for a source that was skipped during operation.
func WithSkip(log *logrus.Logger, source, operation string, err error) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"source":    source,
		"operation": operation,
	}).WithError(err)
}
