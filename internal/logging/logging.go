package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger writes leveled records to a file. The dashboard owns the terminal,
// so nothing here ever touches stdout or stderr.
type Logger struct {
	file   *os.File
	logger *logrus.Logger
}

// New appends to the file at path, creating it and its directory as needed.
// GERRIT_VIEW_DEBUG=debug (or trace) lowers the level.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return &Logger{file: file, logger: newLogrus(file)}, nil
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{logger: newLogrus(io.Discard)}
}

func newLogrus(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetLevel(levelFromEnv())
	return l
}

func levelFromEnv() logrus.Level {
	switch os.Getenv("GERRIT_VIEW_DEBUG") {
	case "trace":
		return logrus.TraceLevel
	case "debug", "1", "true":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Fatal records a fatal-level line. Unlike logrus.Fatal it never exits.
func (l *Logger) Fatal(msg string) {
	l.logger.Log(logrus.FatalLevel, msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.Fatal(fmt.Sprintf(format, args...))
}

// WithField returns an entry tagged with key=value, e.g. a connection id.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}
