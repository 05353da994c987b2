// Package logging wraps zap the way *snow.ConsensusContext gets threaded
// through every consensus component (ctx.Log.Trace/Debug/Info in
// topological.go and issuer.go) instead of reaching for a package-level
// global logger.
package logging

import "go.uber.org/zap"

// Logger is the narrow surface consensus, ledger, and mempool code logs
// through. New and NewNop satisfy it by wrapping a *zap.Logger, so call
// sites use the same zap.String/zap.Stringer/zap.Error field constructors
// throughout.
type Logger interface {
	Trace(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

var _ Logger = (*zapLogger)(nil)

// New wraps an existing *zap.Logger.
func New(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

// NewNop returns a Logger that discards everything, for tests that don't
// care about log output.
func NewNop() Logger {
	return &zapLogger{l: zap.NewNop()}
}

// Trace is mapped onto zap's Debug level: zap has no dedicated Trace level,
// and Trace call sites are reserved for the highest-volume per-vertex
// messages, which is exactly what zap's Debug is for here.
func (z *zapLogger) Trace(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) Fatal(msg string, fields ...zap.Field) { z.l.Fatal(msg, fields...) }

func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}
