package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// LogLevel controls which messages a StdLogger emits.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a configuration string into a LogLevel.
// Unrecognized values fall back to Info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// StdLogger implements ports.Logger on top of the standard library logger,
// writing to stderr with microsecond timestamps.
type StdLogger struct {
	minLevel LogLevel
	logger   *log.Logger
}

// NewStdLogger creates a logger that drops messages below minLevel.
func NewStdLogger(minLevel LogLevel) *StdLogger {
	return &StdLogger{
		minLevel: minLevel,
		logger:   log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// formatFields merges the field maps in order (later maps win on key
// collisions) and renders them as sorted key=value pairs.
func formatFields(fields ...map[string]interface{}) string {
	merged := make(map[string]interface{})
	for _, m := range fields {
		for k, v := range m {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return ""
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, merged[k])
	}
	return " | " + strings.Join(pairs, " ")
}

func (s *StdLogger) emit(level LogLevel, msg, suffix string) {
	if level < s.minLevel {
		return
	}
	s.logger.Printf("[%s] %s%s", level, msg, suffix)
}

// Debug logs a message at Debug level.
func (s *StdLogger) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	s.emit(LevelDebug, msg, formatFields(fields...))
}

// Info logs a message at Info level.
func (s *StdLogger) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	s.emit(LevelInfo, msg, formatFields(fields...))
}

// Warn logs a message at Warning level.
func (s *StdLogger) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	s.emit(LevelWarn, msg, formatFields(fields...))
}

// Error logs an error message at Error level.
func (s *StdLogger) Error(_ context.Context, err error, msg string, fields ...map[string]interface{}) {
	suffix := formatFields(fields...)
	if err != nil {
		suffix = fmt.Sprintf(" | error: %v%s", err, suffix)
	}
	s.emit(LevelError, msg, suffix)
}
