package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/amirhossein-jamali/workscope/internal/domain/port/core"
)

func newObservedLogger(level core.LogLevel) (core.Logger, *observer.ObservedLogs) {
	obsCore, logs := observer.New(zap.DebugLevel)
	return NewZapLoggerFrom(zap.New(obsCore), level), logs
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	log, logs := newObservedLogger(core.LogLevelWarn)

	log.Debug("debug", nil)
	log.Info("info", nil)
	log.Warn("warn", nil)
	log.Error("error", nil)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "warn", logs.All()[0].Message)
	assert.Equal(t, "error", logs.All()[1].Message)

	log.SetLevel(core.LogLevelDebug)
	assert.Equal(t, core.LogLevelDebug, log.GetLevel())
	log.Debug("debug again", nil)
	assert.Equal(t, 3, logs.Len())
}

func TestZapLogger_Fields(t *testing.T) {
	log, logs := newObservedLogger(core.LogLevelDebug)

	child := log.With(map[string]any{"unit_of_work": "uow-1"})
	child.Info("committed", map[string]any{
		"written": 3,
		"cause":   errors.New("none"),
	})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "uow-1", fields["unit_of_work"])
	assert.EqualValues(t, 3, fields["written"])
	assert.Equal(t, "none", fields["cause"])
}

func TestNoopLogger(t *testing.T) {
	log := NewNoopLogger()
	log.SetLevel(core.LogLevelError)

	assert.Equal(t, core.LogLevelError, log.GetLevel())
	assert.Same(t, log, log.With(map[string]any{"a": 1}))
	assert.NoError(t, log.Flush())
}
