package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/middleware"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/internal/service"
	"moysklad_sync/internal/task"
)

// ==================== 依赖接口 ====================

type CatalogSyncer interface {
	SyncProducts(ctx context.Context) (*service.SyncResult, error)
	SyncProduct(ctx context.Context, remoteID string) (service.Outcome, error)
}

type CategorySyncer interface {
	SyncCategories(ctx context.Context) (*service.SyncResult, error)
}

type InventorySyncer interface {
	SyncInventory(ctx context.Context) (*service.SyncResult, error)
}

type PendingOrderSyncer interface {
	SyncPendingOrders(ctx context.Context) (*service.SyncResult, error)
}

type SessionTracker interface {
	Stop() bool
	InProgress() bool
	Status() []service.SessionStatus
}

type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// LimitResetter closes the remote client's rate-limit latches.
type LimitResetter interface {
	ResetGuards()
}

type TaskRunner interface {
	Status() []task.TaskStatus
	RunNow(name string) error
}

// SyncControllerDeps groups what the sync endpoints drive.
type SyncControllerDeps struct {
	Catalog    CatalogSyncer
	Categories CategorySyncer
	Inventory  InventorySyncer
	Orders     PendingOrderSyncer
	Sessions   SessionTracker
	Connection ConnectionTester
	Limits     LimitResetter
	Tasks      TaskRunner
	Options    repository.OptionRepository
}

// SyncController 同步控制器
type SyncController struct {
	deps SyncControllerDeps
}

// NewSyncController 创建同步控制器
func NewSyncController(deps SyncControllerDeps) *SyncController {
	return &SyncController{deps: deps}
}

// ==================== 手动同步 ====================

// SyncProducts runs a full catalog pass, categories first.
// @Summary Run a catalog sync
// @Description Categories first, then every remote product. Blocks until the pass ends or is stopped.
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{} "sync in progress"
// @Failure 429 {object} map[string]interface{} "cooling down"
// @Security BearerAuth
// @Router /sync/products [post]
func (c *SyncController) SyncProducts(ctx *gin.Context) {
	c.runBulk(ctx, "products", c.deps.Catalog.SyncProducts)
}

// SyncCategories
// @Summary Run a category sync
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{} "sync in progress"
// @Security BearerAuth
// @Router /sync/categories [post]
func (c *SyncController) SyncCategories(ctx *gin.Context) {
	c.runBulk(ctx, "categories", c.deps.Categories.SyncCategories)
}

// SyncInventory
// @Summary Run an inventory sync
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{} "sync in progress"
// @Security BearerAuth
// @Router /sync/inventory [post]
func (c *SyncController) SyncInventory(ctx *gin.Context) {
	c.runBulk(ctx, "inventory", c.deps.Inventory.SyncInventory)
}

// SyncPendingOrders pushes unlinked orders older than the sync delay.
// @Summary Push pending orders
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sync/orders [post]
func (c *SyncController) SyncPendingOrders(ctx *gin.Context) {
	c.runBulk(ctx, "orders", c.deps.Orders.SyncPendingOrders)
}

// runBulk detaches the pass from the request so a dropped connection does
// not cancel it. Passes are stopped through Stop.
func (c *SyncController) runBulk(ctx *gin.Context, name string, run func(context.Context) (*service.SyncResult, error)) {
	logger.Log.Info("[SyncAPI] sync triggered",
		zap.String("sync", name), zap.String("user", middleware.GetUsername(ctx)))
	result, err := run(context.WithoutCancel(ctx.Request.Context()))
	if err != nil {
		logger.Log.Warn("[SyncAPI] sync rejected", zap.String("sync", name), zap.Error(err))
		failErr(ctx, err)
		return
	}
	success(ctx, result.Message, result)
}

// SyncProduct re-processes one remote product.
// @Summary Re-import one remote product
// @Tags Sync
// @Accept json
// @Produce json
// @Param remote_id path string true "MoySklad product id"
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{} "remote error"
// @Security BearerAuth
// @Router /sync/products/{remote_id} [post]
func (c *SyncController) SyncProduct(ctx *gin.Context) {
	remoteID := ctx.Param("remote_id")
	outcome, err := c.deps.Catalog.SyncProduct(ctx.Request.Context(), remoteID)
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "product processed", gin.H{"remote_id": remoteID, "outcome": outcome})
}

// ==================== 停止与状态 ====================

// Stop asks running passes to stop at their next checkpoint. Without a
// running pass the request is kept for the next one.
// @Summary Stop running syncs at their next checkpoint
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sync/stop [post]
func (c *SyncController) Stop(ctx *gin.Context) {
	running := c.deps.Sessions.Stop()
	logger.Log.Info("[SyncAPI] stop requested",
		zap.Bool("running", running), zap.String("user", middleware.GetUsername(ctx)))
	msg := "stop requested"
	if !running {
		msg = "no synchronization is running, the next one will stop immediately"
	}
	success(ctx, msg, gin.H{"running": running})
}

// ResetLimits closes the rate-limit latches tripped by repeated 1049
// responses, before their reset interval runs out.
// @Summary Close tripped rate-limit latches
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sync/reset-limits [post]
func (c *SyncController) ResetLimits(ctx *gin.Context) {
	if c.deps.Limits == nil {
		fail(ctx, http.StatusNotImplemented, "rate limit reset is not available")
		return
	}
	c.deps.Limits.ResetGuards()
	logger.Log.Info("[SyncAPI] rate limits reset", zap.String("user", middleware.GetUsername(ctx)))
	success(ctx, "rate limits reset", nil)
}

// SyncStatusResponse is returned by Status.
type SyncStatusResponse struct {
	InProgress bool                    `json:"in_progress"`
	Sessions   []service.SessionStatus `json:"sessions"`
	Tasks      []task.TaskStatus       `json:"tasks"`
	LastSync   map[string]*time.Time   `json:"last_sync"`
}

var lastSyncOptions = map[string]string{
	"products":   model.OptLastProductSync,
	"inventory":  model.OptLastInventorySync,
	"categories": model.OptLastCategorySync,
}

// Status
// @Summary Running sessions, tasks and last sync times
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sync/status [get]
func (c *SyncController) Status(ctx *gin.Context) {
	resp := SyncStatusResponse{
		InProgress: c.deps.Sessions.InProgress(),
		Sessions:   c.deps.Sessions.Status(),
		LastSync:   make(map[string]*time.Time, len(lastSyncOptions)),
	}
	if c.deps.Tasks != nil {
		resp.Tasks = c.deps.Tasks.Status()
	}
	for name, opt := range lastSyncOptions {
		t, err := c.deps.Options.GetTime(ctx.Request.Context(), opt)
		if err != nil {
			failErr(ctx, err)
			return
		}
		if !t.IsZero() {
			resp.LastSync[name] = &t
		}
	}
	success(ctx, "ok", resp)
}

// TestConnection
// @Summary Check the MoySklad credentials
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{} "remote error"
// @Security BearerAuth
// @Router /sync/test-connection [get]
func (c *SyncController) TestConnection(ctx *gin.Context) {
	if err := c.deps.Connection.TestConnection(ctx.Request.Context()); err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "connection to MoySklad is working", nil)
}

// ==================== 定时任务 ====================

// Tasks
// GET /api/v1/tasks
func (c *SyncController) Tasks(ctx *gin.Context) {
	if c.deps.Tasks == nil {
		success(ctx, "ok", []task.TaskStatus{})
		return
	}
	success(ctx, "ok", c.deps.Tasks.Status())
}

// RunTask starts a scheduled task outside its schedule.
// POST /api/v1/tasks/:name/run
func (c *SyncController) RunTask(ctx *gin.Context) {
	if c.deps.Tasks == nil {
		fail(ctx, http.StatusForbidden, task.ErrTaskDisabled.Error())
		return
	}
	name := ctx.Param("name")
	if err := c.deps.Tasks.RunNow(name); err != nil {
		failErr(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{
		"code":    202,
		"message": "task started",
		"data":    gin.H{"name": name},
	})
}
