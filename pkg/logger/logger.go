// Package logger provides structured logging for the gas engine services.
// It wraps logrus so services share one field-based API and one process-wide
// configuration surface.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls the process-wide logging behaviour.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// Logger is a named, field-carrying logger handed to every service.
type Logger struct {
	*logrus.Entry
}

// New builds a logger from configuration. Level defaults to info, format to
// text, output to stderr.
func New(cfg LoggingConfig, name string) (*Logger, error) {
	base := logrus.New()

	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	base.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	out, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	base.SetOutput(out)

	return &Logger{Entry: base.WithField("component", name)}, nil
}

// NewDefault returns a text logger at info level writing to stderr. Services
// use it when no logger was injected.
func NewDefault(name string) *Logger {
	base := logrus.New()
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetOutput(os.Stderr)
	return &Logger{Entry: base.WithField("component", name)}
}

// WithField returns a logger carrying an extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a logger carrying the error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// Named returns a child logger for a sub-component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", name)}
}

func openOutput(cfg LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "gasengine"
		}
		name := fmt.Sprintf("%s-%s.log", prefix, time.Now().UTC().Format("20060102"))
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil && filepath.Dir(name) != "." {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported log output %q", cfg.Output)
	}
}
