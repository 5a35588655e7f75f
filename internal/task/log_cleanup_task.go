package task

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
)

// LogPruner deletes persisted log entries.
type LogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ==================== LogCleanupTask 日志清理任务 ====================

// LogCleanupTask enforces the retention period of the sync log table.
type LogCleanupTask struct {
	logs      LogPruner
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
}

// NewLogCleanupTask keeps entries for retentionDays; 0 disables cleanup.
func NewLogCleanupTask(logs LogPruner, retentionDays int, schedule string) *LogCleanupTask {
	return &LogCleanupTask{
		logs:      logs,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		schedule:  schedule,
		cron:      cron.New(cron.WithSeconds()),
		now:       time.Now,
	}
}

func (t *LogCleanupTask) Start() error {
	if t.retention <= 0 {
		logger.Log.Info("[LogCleanupTask] retention disabled, not scheduled")
		return nil
	}
	_, err := t.cron.AddFunc(t.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.Execute(ctx)
	})
	if err != nil {
		logger.Log.Error("[LogCleanupTask] invalid schedule", zap.String("schedule", t.schedule), zap.Error(err))
		return err
	}
	t.cron.Start()
	logger.Log.Info("[LogCleanupTask] started", zap.String("schedule", t.schedule))
	return nil
}

func (t *LogCleanupTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
}

// Execute deletes entries older than the retention period and returns how
// many were removed.
func (t *LogCleanupTask) Execute(ctx context.Context) int64 {
	if t.retention <= 0 {
		return 0
	}
	cutoff := t.now().Add(-t.retention)
	n, err := t.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logger.Log.Error("[LogCleanupTask] cleanup failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		logger.Log.Info("[LogCleanupTask] old log entries removed", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}
