// Package logger provides a process-wide structured logger used by every
// other package in the core. It wraps zap behind a small function surface so
// callers never import zap directly.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

// Initialize installs a production JSON logger as the process singleton.
// Safe to call more than once; the last call wins.
func Initialize() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

// InitializeDevelopment installs a human-readable console logger, useful for
// tests and local runs.
func InitializeDevelopment() {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

func get() *zap.SugaredLogger {
	if l := singleton.Load(); l != nil {
		return l
	}
	l, _ := zap.NewDevelopment()
	return l.Sugar()
}

func Debug(args ...any)                   { get().Debug(args...) }
func Debugf(format string, args ...any)   { get().Debugf(format, args...) }
func Debugw(msg string, kv ...any)        { get().Debugw(msg, kv...) }
func Info(args ...any)                    { get().Info(args...) }
func Infof(format string, args ...any)    { get().Infof(format, args...) }
func Infow(msg string, kv ...any)         { get().Infow(msg, kv...) }
func Warn(args ...any)                    { get().Warn(args...) }
func Warnf(format string, args ...any)    { get().Warnf(format, args...) }
func Warnw(msg string, kv ...any)         { get().Warnw(msg, kv...) }
func Error(args ...any)                   { get().Error(args...) }
func Errorf(format string, args ...any)   { get().Errorf(format, args...) }
func Errorw(msg string, kv ...any)        { get().Errorw(msg, kv...) }
