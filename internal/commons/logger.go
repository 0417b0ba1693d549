// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package commons carries the small set of cross-cutting helpers every
// other package in this module depends on: structured logging above all.
package commons

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging contract every component in this module takes by
// constructor injection. Never reach for a package-level logger — pass
// one in, so tests can swap it for an observed/no-op implementation.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})

	// With returns a derived logger that always attaches the given
	// key/value pairs, mirroring zap's SugaredLogger.With.
	With(kv ...interface{}) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// LogConfig controls where and how logs are written.
type LogConfig struct {
	Level      string // debug|info|warn|error
	FilePath   string // empty disables file rotation, stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

// NewLogger builds a zap-backed Logger. When FilePath is set, logs are
// rotated through lumberjack in addition to being written to stderr.
func NewLogger(cfg LogConfig) (Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core, zap.AddCaller())
	return &zapLogger{s: base.Sugar()}, nil
}

// NewNopLogger returns a Logger that discards everything; useful in tests.
func NewNopLogger() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}
