package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type OrderSyncer interface {
	OnOrderCreated(ctx context.Context, orderID int64) error
	ChangeStatus(ctx context.Context, orderID int64, status string) error
	CreateOrUpdateOrder(ctx context.Context, orderID int64) (bool, error)
}

// OrderController 订单控制器
type OrderController struct {
	svc OrderSyncer
}

// NewOrderController 创建订单控制器
func NewOrderController(svc OrderSyncer) *OrderController {
	return &OrderController{svc: svc}
}

// ==================== 店面钩子 ====================

// Created is called by the storefront after checkout.
// POST /api/v1/orders/:id/created
func (c *OrderController) Created(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}
	if err := c.svc.OnOrderCreated(ctx.Request.Context(), id); err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "order accepted", gin.H{"order_id": id})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus sets the local status and pushes it to MoySklad.
// PUT /api/v1/orders/:id/status
func (c *OrderController) UpdateStatus(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}
	var req updateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.svc.ChangeStatus(ctx.Request.Context(), id, req.Status); err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "status updated", gin.H{"order_id": id, "status": req.Status})
}

// ==================== 手动推送 ====================

// Sync pushes one order now, ignoring the sync delay.
// POST /api/v1/orders/:id/sync
func (c *OrderController) Sync(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}
	changed, err := c.svc.CreateOrUpdateOrder(ctx.Request.Context(), id)
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "order synchronized", gin.H{"order_id": id, "changed": changed})
}
