// Package logger provides a structured, named-child logger built on zap,
// matching the Named()/leveled logging convention used throughout the
// internal/defi and internal/wallet packages of the source monorepo.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with a stable Named()/With() API so
// callers never depend on zap's types directly.
type Logger struct {
	sugar *zap.SugaredLogger
}

// Config controls construction of the root logger.
type Config struct {
	Level      string // debug|info|warn|error
	JSONFormat bool
	Service    string
}

// DefaultConfig returns sane defaults for local/dev use.
func DefaultConfig() Config {
	return Config{Level: "info", JSONFormat: false, Service: "arbengine"}
}

// New builds a root Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if !cfg.JSONFormat {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"

	zl, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	sugar := zl.Sugar()
	if cfg.Service != "" {
		sugar = sugar.Named(cfg.Service)
	}

	return &Logger{sugar: sugar}, nil
}

// Nop returns a Logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Named returns a child logger with an additional name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// With returns a child logger carrying additional structured fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *Logger) Info(msg string, keysAndValues ...interface{})  { l.sugar.Infow(msg, keysAndValues...) }
func (l *Logger) Warn(msg string, keysAndValues ...interface{})  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *Logger) Error(msg string, keysAndValues ...interface{}) { l.sugar.Errorw(msg, keysAndValues...) }

// Sync flushes buffered log entries; call on shutdown.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
