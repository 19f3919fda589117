package utils // nolint:revive // utils is an acceptable name for internal utility package

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is the leveled logging interface used across the application.
// Success is a variant of Info used for completion messages.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// LogLevel controls which messages a SimpleLogger emits.
type LogLevel int

// Log levels, most verbose first.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

// SimpleLogger writes colorized, timestamped log lines to a single writer.
// Writes are serialized so concurrent job pipelines don't interleave lines.
type SimpleLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level LogLevel
}

// NewSimpleLogger creates a logger writing to stderr at Info level.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{out: os.Stderr, level: LevelInfo}
}

// NewSimpleLoggerWithLevel creates a logger writing to w at the given level.
func NewSimpleLoggerWithLevel(w io.Writer, level LogLevel) *SimpleLogger {
	return &SimpleLogger{out: w, level: level}
}

// NewSilentLogger creates a logger that discards everything.
func NewSilentLogger() *SimpleLogger {
	return &SimpleLogger{out: io.Discard, level: LevelSilent}
}

// SetLevel changes the minimum emitted level.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the minimum emitted level.
func (l *SimpleLogger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *SimpleLogger) logf(level LogLevel, tag, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(l.out, "%s %s %s\n",
		Colorize(ColorDim, timestamp),
		FormatLogLevel(tag),
		message)
}

// Debug logs a debug message
func (l *SimpleLogger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, "DEBUG", format, args...)
}

// Info logs an informational message
func (l *SimpleLogger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, "INFO", format, args...)
}

// Success logs a completion message with green color
func (l *SimpleLogger) Success(format string, args ...interface{}) {
	l.logf(LevelInfo, "SUCCESS", format, args...)
}

// Warn logs a warning message with yellow color
func (l *SimpleLogger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, "WARN", format, args...)
}

// Error logs an error message with red color
func (l *SimpleLogger) Error(format string, args ...interface{}) {
	l.logf(LevelError, "ERROR", format, args...)
}
