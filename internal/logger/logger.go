package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is a no-op until InitLogger runs.
var Log = zap.NewNop()

var consoleCore zapcore.Core = zapcore.NewNopCore()

// InitLogger builds the console logger. format is "json" or "console".
func InitLogger(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	consoleCore = zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl)
	Log = zap.New(consoleCore, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	return nil
}

// AttachDB tees the console logger with a core persisting entries at or
// above level through w.
func AttachDB(w LogWriter, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	Log = zap.New(zapcore.NewTee(consoleCore, NewDBCore(w, lvl)),
		zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}

// Named returns a child logger.
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

// ==================== 级别映射 ====================

// ParseLevel accepts zap level names and the syslog-style names
// notice, warning, critical, alert and emergency.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info", "notice":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical", "alert", "emergency", "dpanic":
		return zapcore.DPanicLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// LevelName is the name stored in the log table.
func LevelName(l zapcore.Level) string {
	switch {
	case l <= zapcore.DebugLevel:
		return "debug"
	case l == zapcore.InfoLevel:
		return "info"
	case l == zapcore.WarnLevel:
		return "warning"
	case l == zapcore.ErrorLevel:
		return "error"
	default:
		return "critical"
	}
}
