package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"moysklad_sync/internal/model"
)

// LogFilter 日志过滤条件
type LogFilter struct {
	Level  string
	Limit  int
	Offset int
}

// SyncLogRepository 同步日志仓储接口
type SyncLogRepository interface {
	Insert(ctx context.Context, entry *model.SyncLog) error
	List(ctx context.Context, filter LogFilter) ([]model.SyncLog, error)
	Count(ctx context.Context, level string) (int64, error)
	Clear(ctx context.Context) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type syncLogRepo struct {
	db *gorm.DB
}

// NewSyncLogRepository 创建日志仓储
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepo{db: db}
}

func (r *syncLogRepo) Insert(ctx context.Context, entry *model.SyncLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns entries newest first.
func (r *syncLogRepo) List(ctx context.Context, filter LogFilter) ([]model.SyncLog, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	query := r.db.WithContext(ctx).Model(&model.SyncLog{})
	if filter.Level != "" {
		query = query.Where("level = ?", filter.Level)
	}
	var logs []model.SyncLog
	err := query.
		Order("timestamp DESC, id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&logs).Error
	return logs, err
}

func (r *syncLogRepo) Count(ctx context.Context, level string) (int64, error) {
	var n int64
	query := r.db.WithContext(ctx).Model(&model.SyncLog{})
	if level != "" {
		query = query.Where("level = ?", level)
	}
	err := query.Count(&n).Error
	return n, err
}

func (r *syncLogRepo) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.SyncLog{}).Error
}

func (r *syncLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&model.SyncLog{})
	return res.RowsAffected, res.Error
}
