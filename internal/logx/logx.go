// Package logx wraps log/slog behind a small interface, the same way
// the teacher wraps it in utils/slogx: a default backed by slog, plain
// leveled methods, no call that can itself fail.
package logx

import (
	"context"
	"fmt"
	"log/slog"
)

// LevelTrace sits below slog's built-in Debug level for the engine's
// most granular diagnostics (per-step decode/write tracing).
const LevelTrace = slog.Level(-8)

// Logger is the collaborator interface the engine and service accept.
// Any component may substitute its own implementation — the core never
// requires log/slog specifically, only this shape.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogLogger struct {
	l *slog.Logger
}

// New wraps l, or slog.Default() when l is nil.
func New(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Trace(msg string, args ...any) {
	s.l.Log(context.Background(), LevelTrace, msg, args...)
}
func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// Err mirrors the teacher's utils/slogx.Error helper: a structured
// attribute for an error value that may be nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", fmt.Sprintf("%+v", err))
}
