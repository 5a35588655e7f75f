package task

import (
	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
)

// ==================== TaskManager 定时任务管理器 ====================

// TaskManager owns the scheduled passes. Manual runs from the API go through
// the services directly and share their single-flight sessions.
type TaskManager struct {
	catalogTask   *SyncTask
	inventoryTask *SyncTask
	orderTask     *SyncTask
	cleanupTask   *LogCleanupTask
}

// TaskManagerDeps 任务管理器依赖; nil members disable their task.
type TaskManagerDeps struct {
	Catalog   CatalogSyncer
	Inventory InventorySyncer
	Orders    PendingOrderSyncer
	Logs      LogPruner
}

func NewTaskManager(deps *TaskManagerDeps, cfg *config.Config) *TaskManager {
	tm := &TaskManager{}

	if cfg.Catalog.Enabled && cfg.Catalog.Schedule != "" && deps.Catalog != nil {
		tm.catalogTask = NewCatalogSyncTask(deps.Catalog, cfg.Catalog.Schedule)
	}
	if cfg.Inventory.Enabled && cfg.Inventory.Schedule != "" && deps.Inventory != nil {
		tm.inventoryTask = NewInventorySyncTask(deps.Inventory, cfg.Inventory.Schedule)
	}
	if cfg.Order.Enabled && cfg.Order.PendingSchedule != "" && deps.Orders != nil {
		tm.orderTask = NewPendingOrderTask(deps.Orders, cfg.Order.PendingSchedule)
	}
	if deps.Logs != nil {
		tm.cleanupTask = NewLogCleanupTask(deps.Logs, cfg.Logging.RetentionDays, cfg.Logging.CleanupCron)
	}
	return tm
}

func (tm *TaskManager) syncTasks() []*SyncTask {
	var out []*SyncTask
	for _, t := range []*SyncTask{tm.catalogTask, tm.inventoryTask, tm.orderTask} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// ==================== 生命周期管理 ====================

// Start returns the first schedule error; tasks started before it keep running.
func (tm *TaskManager) Start() error {
	logger.Log.Info("[TaskManager] starting scheduled tasks")
	for _, t := range tm.syncTasks() {
		if err := t.Start(); err != nil {
			return err
		}
	}
	if tm.cleanupTask != nil {
		if err := tm.cleanupTask.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (tm *TaskManager) Stop() {
	logger.Log.Info("[TaskManager] stopping scheduled tasks")
	for _, t := range tm.syncTasks() {
		t.Stop()
	}
	if tm.cleanupTask != nil {
		tm.cleanupTask.Stop()
	}
}

// ==================== 状态查询 ====================

// TaskStatus is one scheduled task as reported by the status endpoint.
type TaskStatus struct {
	Name    string   `json:"name"`
	Running bool     `json:"running"`
	LastRun *RunInfo `json:"last_run,omitempty"`
}

func (tm *TaskManager) Status() []TaskStatus {
	var out []TaskStatus
	for _, t := range tm.syncTasks() {
		out = append(out, TaskStatus{Name: t.Name(), Running: t.Running(), LastRun: t.LastRun()})
	}
	return out
}

// RunNow starts the named scheduled task in the background.
func (tm *TaskManager) RunNow(name string) error {
	for _, t := range tm.syncTasks() {
		if t.Name() == name {
			t.RunNow()
			return nil
		}
	}
	return ErrTaskDisabled
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
