package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// sessionTagLength is how many characters of a session id are shown in the prefix
const sessionTagLength = 8

var levelPrefixes = map[Level]string{
	DebugLevel:  "[DEBUG]  ",
	InfoLevel:   "[INFO]   ",
	NoticeLevel: "[NOTICE] ",
	ErrorLevel:  "[ERROR]  ",
}

var levelColors = map[Level]color.Attribute{
	DebugLevel:  color.FgWhite,
	InfoLevel:   color.FgHiGreen,
	NoticeLevel: color.FgYellow,
	ErrorLevel:  color.FgRed,
}

// ParseLevel converts a level name into a Level
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level: %s", name)
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithSession(sessionID string, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithSession(sessionID string, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithSession(sessionID string, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithSession(sessionID string, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                        {}
func (l *EmptyLogger) InfoWithSession(_ string, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                       {}
func (l *EmptyLogger) ErrorWithSession(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                       {}
func (l *EmptyLogger) DebugWithSession(_ string, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                      {}
func (l *EmptyLogger) NoticeWithSession(_ string, _ string, _ ...interface{}) {}

// StdLogger logs to the standard library logger with a level prefix and an optional session tag.
type StdLogger struct {
	enableColoring bool
	level          Level
	out            *log.Logger
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
		out:            log.Default(),
	}
}

// sessionTag shortens a session id to a fixed width prefix
func sessionTag(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	if len(sessionID) > sessionTagLength {
		sessionID = sessionID[:sessionTagLength]
	}
	return fmt.Sprintf("[%-*s] ", sessionTagLength, sessionID)
}

// formatMessage formats the log message with the level, session tag, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, sessionID string, format string) string {
	levelStr := levelPrefixes[level]
	if l.enableColoring {
		levelStr = color.New(levelColors[level]).Sprint(levelStr)
	}
	return levelStr + sessionTag(sessionID) + format
}

func (l *StdLogger) logf(level Level, sessionID string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		l.out.Printf(l.formatMessage(level, sessionID, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, "", format, args...)
}

func (l *StdLogger) InfoWithSession(sessionID string, format string, args ...interface{}) {
	l.logf(InfoLevel, sessionID, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, "", format, args...)
}

func (l *StdLogger) ErrorWithSession(sessionID string, format string, args ...interface{}) {
	l.logf(ErrorLevel, sessionID, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, "", format, args...)
}

func (l *StdLogger) DebugWithSession(sessionID string, format string, args ...interface{}) {
	l.logf(DebugLevel, sessionID, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, "", format, args...)
}

func (l *StdLogger) NoticeWithSession(sessionID string, format string, args ...interface{}) {
	l.logf(NoticeLevel, sessionID, format, args...)
}
