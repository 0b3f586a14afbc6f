// Package logger provides basic logging functionalities.
package logger

import (
	"fmt"
	"os"
	"strings"

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
	// Infow logs a message with structured key/value pairs.
	Infow(msg string, keysAndValues ...interface{})
	// Debugw logs a debug message with structured key/value pairs.
	Debugw(msg string, keysAndValues ...interface{})
	// Warnw logs a warning with structured key/value pairs.
	Warnw(msg string, keysAndValues ...interface{})
}

// zapLogger adapts a zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// parseLevel maps "debug", "info", "warn", "error", "fatal" to a zap level.
// Unknown values fall back to info.
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

func build(logLevel string) *zapLogger {
	level := zap.NewAtomicLevelAt(parseLevel(logLevel))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return level.Enabled(l) && l < zapcore.ErrorLevel
		})),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return level.Enabled(l) && l >= zapcore.ErrorLevel
		})),
	)

	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	return &zapLogger{
		base:  base,
		sugar: base.Sugar(),
		level: level,
	}
}

// sprintln mirrors log.Println spacing without the trailing newline.
func sprintln(args ...interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(args...), "\n")
}

// NewLogger creates and configures a new Logger instance.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return build(logLevel)
}

func (l *zapLogger) Debug(args ...interface{})                 { l.sugar.Debug(sprintln(args...)) }
func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Info(args ...interface{})                  { l.sugar.Info(sprintln(args...)) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warn(args ...interface{})                  { l.sugar.Warn(sprintln(args...)) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Error(args ...interface{})                 { l.sugar.Error(sprintln(args...)) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Fatal(args ...interface{})                 { l.sugar.Fatal(sprintln(args...)) }
func (l *zapLogger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

func (l *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Global std logger instance, initialized with default "info" settings.
var std = build("info")

func global() *zapLogger {
	return std
}

// SetGlobalLogLevel reconfigures the global std logger's level.
func SetGlobalLogLevel(logLevel string) {
	global().level.SetLevel(parseLevel(logLevel))
}

// Zap returns the zap logger behind the global std logger, for components
// that take a *zap.Logger directly.
func Zap() *zap.Logger {
	return global().base.WithOptions(zap.AddCallerSkip(-2))
}

// Sync flushes any buffered log entries.
func Sync() error {
	return global().base.Sync()
}

// Debug logs a debug message using the global std logger.
func Debug(args ...interface{}) {
	global().Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	global().Debugf(format, args...)
}

// Debugw logs a debug message with structured key/value pairs.
func Debugw(msg string, keysAndValues ...interface{}) {
	global().Debugw(msg, keysAndValues...)
}

// Info logs an informational message using the global std logger.
func Info(args ...interface{}) {
	global().Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	global().Infof(format, args...)
}

// Infow logs an informational message with structured key/value pairs.
func Infow(msg string, keysAndValues ...interface{}) {
	global().Infow(msg, keysAndValues...)
}

// Warn logs a warning message.
func Warn(args ...interface{}) {
	global().Warn(args...)
}

// Warnf logs a warning message with formatting.
func Warnf(format string, args ...interface{}) {
	global().Warnf(format, args...)
}

// Warnw logs a warning with structured key/value pairs.
func Warnw(msg string, keysAndValues ...interface{}) {
	global().Warnw(msg, keysAndValues...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	global().Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	global().Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	global().Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	global().Fatalf(format, args...)
}
