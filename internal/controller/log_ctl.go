package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
)

// LogController exposes the persisted sync log.
type LogController struct {
	logs repository.SyncLogRepository
}

func NewLogController(logs repository.SyncLogRepository) *LogController {
	return &LogController{logs: logs}
}

var validLogLevels = map[string]bool{
	"":                     true,
	model.LogLevelDebug:    true,
	model.LogLevelInfo:     true,
	model.LogLevelWarning:  true,
	model.LogLevelError:    true,
	model.LogLevelCritical: true,
}

// List
// GET /api/v1/logs?level=&page=&page_size=
func (c *LogController) List(ctx *gin.Context) {
	level := ctx.Query("level")
	if !validLogLevels[level] {
		fail(ctx, http.StatusBadRequest, "unknown log level")
		return
	}
	page := queryInt(ctx, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(ctx, "page_size", 50)
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	entries, err := c.logs.List(ctx.Request.Context(), repository.LogFilter{
		Level:  level,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		failErr(ctx, err)
		return
	}
	total, err := c.logs.Count(ctx.Request.Context(), level)
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "ok", gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"list":      entries,
	})
}

// Count
// GET /api/v1/logs/count?level=
func (c *LogController) Count(ctx *gin.Context) {
	level := ctx.Query("level")
	if !validLogLevels[level] {
		fail(ctx, http.StatusBadRequest, "unknown log level")
		return
	}
	total, err := c.logs.Count(ctx.Request.Context(), level)
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "ok", gin.H{"level": level, "total": total})
}

// Clear
// DELETE /api/v1/logs
func (c *LogController) Clear(ctx *gin.Context) {
	if err := c.logs.Clear(ctx.Request.Context()); err != nil {
		failErr(ctx, err)
		return
	}
	logger.Log.Info("[LogAPI] sync log cleared", zap.String("by", ctx.GetString("username")))
	success(ctx, "logs cleared", nil)
}
