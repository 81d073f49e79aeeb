package logger

import (
	"os"
	"strings"
	"sync"

	"nepse-observer/src/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base     *zap.Logger
	baseOnce sync.Once
)

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name  string
	sugar *zap.SugaredLogger
}

// -----------------------------------------------------------------------------

// Init builds the process-wide zap logger. "prod" uses the JSON encoder,
// anything else the console encoder. Only the first call has effect.
func Init(env, level string) {
	baseOnce.Do(func() {
		var cfg zap.Config
		if env == "prod" || env == "production" {
			cfg = zap.NewProductionConfig()
		} else {
			cfg = zap.NewDevelopmentConfig()
		}
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	})
}

// -----------------------------------------------------------------------------

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARNING", "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance
func NewLogger(cfg *models.MConfig, name string) *Logger {
	if cfg != nil {
		Init(cfg.Env, cfg.LogLevel)
	} else {
		Init("development", "INFO")
	}
	return &Logger{
		name:  name,
		sugar: base.Named(name).Sugar(),
	}
}

// -----------------------------------------------------------------------------

// NewWithCore wraps an explicit zap core. Used by tests that observe output.
func NewWithCore(core zapcore.Core, name string) *Logger {
	return &Logger{
		name:  name,
		sugar: zap.New(core).Named(name).Sugar(),
	}
}

// -----------------------------------------------------------------------------

// Named returns a child logger sharing the same sink.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:  l.name + "." + name,
		sugar: l.sugar.Named(name),
	}
}

// -----------------------------------------------------------------------------

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// -----------------------------------------------------------------------------

func (l *Logger) Warning(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
	_ = l.sugar.Sync()
	os.Exit(1)
}

// -----------------------------------------------------------------------------

// Sync flushes buffered entries. Call before exit.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
