// Package log is a minimal leveled logger over the standard library.
// The level is a process-wide atomic so hot paths can gate debug output
// without locks.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// Level defines the severity of a log message.
type Level uint32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the fixed-width tag for the level.
func (l Level) String() string {
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
		return "?????"
	}
}

// ParseLevel converts a string (case-insensitive) to a Level.
// Unrecognized strings return LevelInfo and false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

var (
	current atomic.Uint32
	logger  = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level.
func SetLevel(level Level) {
	current.Store(uint32(level))
}

// GetLevel returns the current global logging level.
func GetLevel() Level {
	return Level(current.Load())
}

// SetOutput redirects log output. The terminal UI owns stderr while it
// runs, so interactive mode points this at a file or io.Discard.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func emit(level Level, format string, v ...any) {
	if level >= GetLevel() {
		logger.Printf("[%-5s] %s", level, fmt.Sprintf(format, v...))
	}
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) { emit(LevelDebug, format, v...) }

// Infof logs a formatted info message.
func Infof(format string, v ...any) { emit(LevelInfo, format, v...) }

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) { emit(LevelWarn, format, v...) }

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) { emit(LevelError, format, v...) }

// Fatalf logs a formatted message regardless of level and exits.
func Fatalf(format string, v ...any) {
	logger.Fatalf("[FATAL] %s", fmt.Sprintf(format, v...))
}
