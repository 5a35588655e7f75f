package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"moysklad_sync/internal/service"
	"moysklad_sync/internal/task"
	"moysklad_sync/pkg/moysklad"
)

// ==================== 统一响应 ====================

func success(ctx *gin.Context, message string, data interface{}) {
	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": message,
		"data":    data,
	})
}

func fail(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{
		"code":    status,
		"message": message,
	})
}

// failErr maps engine errors onto HTTP statuses.
func failErr(ctx *gin.Context, err error) {
	fail(ctx, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var apiErr *moysklad.APIError
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrSyncDisabled),
		errors.Is(err, service.ErrWebhookDisabled),
		errors.Is(err, task.ErrTaskDisabled):
		return http.StatusForbidden
	case errors.Is(err, moysklad.ErrAPINotConfigured),
		errors.Is(err, service.ErrNoPositions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, moysklad.ErrAuthFailed),
		errors.Is(err, moysklad.ErrWebhookPermission),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ==================== 参数解析 ====================

// parseID reads a positive int64 path parameter. On failure the response is
// already written and 0 is returned.
func parseID(ctx *gin.Context, key string) int64 {
	id, err := strconv.ParseInt(ctx.Param(key), 10, 64)
	if err != nil || id <= 0 {
		fail(ctx, http.StatusBadRequest, "invalid id")
		return 0
	}
	return id
}

func queryInt(ctx *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(ctx.Query(key))
	if err != nil {
		return def
	}
	return v
}
