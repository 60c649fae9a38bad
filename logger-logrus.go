//go:build !tinygo

package nrf24

import (
	"github.com/sirupsen/logrus"
)

func init() {
	globalLogger = NewLogrusLogger(logrus.StandardLogger())
}

// logrusLogger adapts a logrus logger to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l. All messages carry component=radio.
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{entry: l.WithField("component", "radio")}
}

func (l *logrusLogger) Debug(msg string) { l.entry.Debug(msg) }
func (l *logrusLogger) Info(msg string)  { l.entry.Info(msg) }
func (l *logrusLogger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *logrusLogger) Error(msg string) { l.entry.Error(msg) }
