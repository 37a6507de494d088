// Package logging contains the structured logger used by the importers and the command line.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the logging interface handed to every parser. Warnings surfaced here are also
// accumulated on the imported model.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Sublogger(subname string) Logger
	Sync() error
}

// NewImportLoggerConfig is the console configuration used by the command line: colored levels,
// no stacktraces, everything on stderr so stdout stays free for the summary.
func NewImportLoggerConfig(level zapcore.Level) zap.Config {
	encoder := zap.NewDevelopmentEncoderConfig()
	encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoder.FunctionKey = zapcore.OmitKey
	encoder.ConsoleSeparator = " "

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Development = false
	cfg.DisableStacktrace = true
	cfg.EncoderConfig = encoder
	cfg.OutputPaths = []string{"stderr"}
	return cfg
}

// NewLogger returns a new logger that outputs Info+ logs to stderr.
func NewLogger(name string) Logger {
	return build(name, NewImportLoggerConfig(zapcore.InfoLevel))
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stderr.
func NewDebugLogger(name string) Logger {
	return build(name, NewImportLoggerConfig(zapcore.DebugLevel))
}

func build(name string, cfg zap.Config) Logger {
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &impl{logger.Sugar().Named(name)}
}

// NewTestLogger returns a new logger that outputs Debug+ logs through the testing.TB.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger also records every entry so tests can assert on emitted warnings.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	tee := zapcore.NewTee(zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)).Core(), core)
	return &impl{zap.New(tee).Sugar()}, logs
}
