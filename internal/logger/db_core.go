package logger

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap/zapcore"
	"gorm.io/datatypes"

	"moysklad_sync/internal/model"
)

// LogWriter persists one log entry.
type LogWriter interface {
	Insert(ctx context.Context, entry *model.SyncLog) error
}

// DBCore is a zapcore.Core writing entries into the sync_logs table.
type DBCore struct {
	zapcore.LevelEnabler
	writer LogWriter
	fields []zapcore.Field
}

// NewDBCore creates a core enabled at level and above.
func NewDBCore(w LogWriter, level zapcore.LevelEnabler) *DBCore {
	return &DBCore{LevelEnabler: level, writer: w}
}

func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *DBCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	if ent.LoggerName != "" {
		enc.AddString("logger", ent.LoggerName)
	}

	var ctxJSON datatypes.JSON
	if len(enc.Fields) > 0 {
		raw, err := json.Marshal(enc.Fields)
		if err == nil {
			ctxJSON = raw
		}
	}

	ts := ent.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.writer.Insert(ctx, &model.SyncLog{
		Timestamp: ts,
		Level:     LevelName(ent.Level),
		Message:   ent.Message,
		Context:   ctxJSON,
	})
}

func (c *DBCore) Sync() error { return nil }
