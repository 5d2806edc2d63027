// Package logger provides structured logging for all registry components.
// It wraps logrus so services share one configuration surface and can chain
// WithField/WithError the same way everywhere.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a service-scoped structured logger.
type Logger struct {
	*logrus.Entry
}

// New creates a logger for the named service at the given level.
func New(service string, level logrus.Level) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return &Logger{Entry: l.WithField("service", service)}
}

// NewDefault creates a logger for the named service at info level.
func NewDefault(service string) *Logger {
	return New(service, logrus.InfoLevel)
}

// NewFromEnv creates a logger whose level is parsed from a level string
// ("debug", "info", "warn", "error"). Unknown values fall back to info.
func NewFromEnv(service, level string) *Logger {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	return New(service, parsed)
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Entry: l.WithField("service", "test")}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}
