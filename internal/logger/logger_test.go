package logger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"moysklad_sync/internal/model"
)

type memoryWriter struct {
	mu      sync.Mutex
	entries []model.SyncLog
}

func (w *memoryWriter) Insert(_ context.Context, e *model.SyncLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, *e)
	return nil
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"notice", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"emergency", zapcore.DPanicLevel},
		{"alert", zapcore.DPanicLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDBCore_PersistsAtOrAboveLevel(t *testing.T) {
	w := &memoryWriter{}
	log := zap.New(NewDBCore(w, zapcore.WarnLevel)).With(zap.String("component", "inventory"))

	log.Info("skipped")
	log.Warn("rate limited", zap.Int("attempt", 2))
	log.Error("failed", zap.Error(errors.New("boom")))

	require.Len(t, w.entries, 2)
	assert.Equal(t, "warning", w.entries[0].Level)
	assert.Equal(t, "rate limited", w.entries[0].Message)
	assert.JSONEq(t, `{"component":"inventory","attempt":2}`, string(w.entries[0].Context))
	assert.Equal(t, "error", w.entries[1].Level)
	assert.Contains(t, string(w.entries[1].Context), "boom")
}

func TestDBCore_CriticalStoredAsCritical(t *testing.T) {
	w := &memoryWriter{}
	log := zap.New(NewDBCore(w, zapcore.DebugLevel))
	log.DPanic("emergency")
	require.Len(t, w.entries, 1)
	assert.Equal(t, model.LogLevelCritical, w.entries[0].Level)
}
