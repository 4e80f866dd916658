package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields are structured key/values attached to every line of a Logger.
type Fields = logrus.Fields

type Logger struct {
	Debug bool
	entry *logrus.Entry
}

func NewLogger(debug bool) *Logger {
	return NewLoggerTo(os.Stderr, debug)
}

func NewLoggerTo(w io.Writer, debug bool) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	l.SetLevel(logrus.InfoLevel)
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}

	return &Logger{Debug: debug, entry: logrus.NewEntry(l)}
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return NewLoggerTo(io.Discard, false)
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{Debug: l.Debug, entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.Debug {
		l.entry.Debug(line(format, args))
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.entry.Info(line(format, args))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.entry.Warn(line(format, args))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.entry.Error(line(format, args))
}

// line formats the message and drops the trailing newline logrus adds itself.
func line(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
