// Package logger provides basic logging functionalities.
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a simple interface for logging.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NewLogger creates a zap-backed Logger for the given level.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return build(logLevel).Sugar()
}

// NewZap returns the structured logger handed to internal packages.
func NewZap(logLevel string) *zap.Logger {
	return build(logLevel)
}

func build(logLevel string) *zap.Logger {
	var cfg zap.Config
	if logLevel == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(logLevel))
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		// We can't use the logger here because building it failed.
		fmt.Fprintf(os.Stderr, "failed to build zap logger, falling back to nop: %v\n", err)
		return zap.NewNop()
	}
	return l
}

func parseLevel(logLevel string) zapcore.Level {
	switch logLevel {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	mu    sync.RWMutex
	base  = build("info")
	sugar = base.Sugar()
)

// SetGlobalLogLevel reconfigures the global logger's level.
func SetGlobalLogLevel(logLevel string) {
	l := build(logLevel)
	mu.Lock()
	base = l
	sugar = l.Sugar()
	mu.Unlock()
}

// L returns the global structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func std() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = L().Sync()
}

// Debug logs a debug message using the global logger.
func Debug(args ...interface{}) {
	std().Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	std().Debugf(format, args...)
}

// Info logs an informational message using the global logger.
func Info(args ...interface{}) {
	std().Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	std().Infof(format, args...)
}

// Warn logs a warning.
func Warn(args ...interface{}) {
	std().Warn(args...)
}

// Warnf logs a warning with formatting.
func Warnf(format string, args ...interface{}) {
	std().Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	std().Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	std().Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	std().Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	std().Fatalf(format, args...)
}
