package model

import (
	"time"

	"gorm.io/datatypes"
)

// SyncLog is a persisted log entry.
type SyncLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp time.Time      `gorm:"index" json:"timestamp"`
	Level     string         `gorm:"size:16;index" json:"level"`
	Message   string         `gorm:"type:text" json:"message"`
	Context   datatypes.JSON `json:"context,omitempty"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}

// ==================== 日志级别常量 ====================

const (
	LogLevelDebug    = "debug"
	LogLevelInfo     = "info"
	LogLevelWarning  = "warning"
	LogLevelError    = "error"
	LogLevelCritical = "critical"
)
