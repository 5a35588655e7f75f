package task

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/service"
)

// ==================== 同步接口 ====================

type CatalogSyncer interface {
	SyncProducts(ctx context.Context) (*service.SyncResult, error)
}

type InventorySyncer interface {
	SyncInventory(ctx context.Context) (*service.SyncResult, error)
}

type PendingOrderSyncer interface {
	SyncPendingOrders(ctx context.Context) (*service.SyncResult, error)
}

// RunFunc is one bulk pass.
type RunFunc func(ctx context.Context) (*service.SyncResult, error)

// ==================== SyncTask 定时同步任务 ====================

// SyncTask runs a bulk pass on a cron schedule (with seconds). Overlapping
// runs are dropped; the services also refuse a second session of a kind.
type SyncTask struct {
	name     string
	schedule string
	timeout  time.Duration
	run      RunFunc
	cron     *cron.Cron

	running atomic.Bool
	lastRun atomic.Pointer[RunInfo]
}

// RunInfo describes the last finished run.
type RunInfo struct {
	StartedAt time.Time           `json:"started_at"`
	Duration  float64             `json:"duration"`
	Result    *service.SyncResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func NewSyncTask(name, schedule string, timeout time.Duration, run RunFunc) *SyncTask {
	return &SyncTask{
		name:     name,
		schedule: schedule,
		timeout:  timeout,
		run:      run,
		cron:     cron.New(cron.WithSeconds()),
	}
}

func NewCatalogSyncTask(svc CatalogSyncer, schedule string) *SyncTask {
	return NewSyncTask("CatalogSyncTask", schedule, 6*time.Hour, svc.SyncProducts)
}

func NewInventorySyncTask(svc InventorySyncer, schedule string) *SyncTask {
	return NewSyncTask("InventorySyncTask", schedule, time.Hour, svc.SyncInventory)
}

// NewPendingOrderTask retries orders that were not created remotely yet,
// including those deferred by the order sync delay.
func NewPendingOrderTask(svc PendingOrderSyncer, schedule string) *SyncTask {
	return NewSyncTask("PendingOrderTask", schedule, 10*time.Minute, svc.SyncPendingOrders)
}

func (t *SyncTask) Name() string { return t.name }

// Start 启动定时任务
func (t *SyncTask) Start() error {
	if _, err := t.cron.AddFunc(t.schedule, func() { t.Execute(context.Background()) }); err != nil {
		logger.Log.Error("["+t.name+"] invalid schedule", zap.String("schedule", t.schedule), zap.Error(err))
		return err
	}
	t.cron.Start()
	logger.Log.Info("["+t.name+"] started", zap.String("schedule", t.schedule))
	return nil
}

// Stop waits for a running job to return.
func (t *SyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	logger.Log.Info("[" + t.name + "] stopped")
}

// Execute runs one pass synchronously. It returns false when a pass of this
// task was already running.
func (t *SyncTask) Execute(parent context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		logger.Log.Info("[" + t.name + "] previous run still active, skipping")
		return false
	}
	defer t.running.Store(false)

	ctx, cancel := context.WithTimeout(parent, t.timeout)
	defer cancel()

	info := &RunInfo{StartedAt: time.Now()}
	result, err := t.run(ctx)
	info.Duration = time.Since(info.StartedAt).Seconds()
	info.Result = result

	switch {
	case errors.Is(err, service.ErrSyncDisabled):
		logger.Log.Debug("[" + t.name + "] disabled in settings")
	case errors.Is(err, service.ErrSyncInProgress):
		logger.Log.Info("[" + t.name + "] a manual run is in progress, skipping")
	case err != nil:
		info.Error = err.Error()
		logger.Log.Error("["+t.name+"] run failed", zap.Error(err))
	case result != nil && !result.Success:
		logger.Log.Warn("["+t.name+"] run unsuccessful", zap.String("message", result.Message))
	case result != nil:
		logger.Log.Info("["+t.name+"] run finished",
			zap.Int("created", result.Stats.Created),
			zap.Int("updated", result.Stats.Updated),
			zap.Int("failed", result.Stats.Failed),
			zap.Bool("stopped", result.Stopped))
	}
	t.lastRun.Store(info)
	return true
}

// RunNow starts a pass in the background.
func (t *SyncTask) RunNow() {
	go t.Execute(context.Background())
}

func (t *SyncTask) Running() bool { return t.running.Load() }

// LastRun is nil until a pass finished.
func (t *SyncTask) LastRun() *RunInfo { return t.lastRun.Load() }
