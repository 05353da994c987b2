package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return New(zap.New(core)), logs
}

func TestInfoRecordsMessageAndFields(t *testing.T) {
	log, logs := newObserved(zapcore.DebugLevel)
	log.Info("round started", zap.Int("k", 4))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "round started", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestTraceMapsOntoDebugLevel(t *testing.T) {
	log, logs := newObserved(zapcore.DebugLevel)
	log.Trace("sampled peers")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
}

func TestWithAttachesFieldsToSubsequentCalls(t *testing.T) {
	log, logs := newObserved(zapcore.DebugLevel)
	scoped := log.With(zap.String("component", "engine"))
	scoped.Warn("discarding round")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "engine", entries[0].ContextMap()["component"])
}

func TestNopDiscardsWithoutPanicking(t *testing.T) {
	log := NewNop()
	require.NotPanics(t, func() {
		log.Info("noop")
		log.Error("noop", zap.Error(nil))
	})
}
