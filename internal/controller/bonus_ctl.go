package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"moysklad_sync/internal/service"
)

type BonusManager interface {
	Enabled() bool
	RegisterAttributes(ctx context.Context) (*service.BonusAttributes, error)
	UpdateCustomerBalance(ctx context.Context, customerID int64, points int) error
}

type BonusController struct {
	svc BonusManager
}

func NewBonusController(svc BonusManager) *BonusController {
	return &BonusController{svc: svc}
}

// RegisterAttributes
// POST /api/v1/bonus/attributes
func (c *BonusController) RegisterAttributes(ctx *gin.Context) {
	if !c.svc.Enabled() {
		fail(ctx, http.StatusForbidden, service.ErrSyncDisabled.Error())
		return
	}
	attrs, err := c.svc.RegisterAttributes(ctx.Request.Context())
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "bonus attributes registered", attrs)
}

type balanceRequest struct {
	Points *int `json:"points" binding:"required"`
}

// UpdateBalance
// PUT /api/v1/bonus/customers/:id/balance
func (c *BonusController) UpdateBalance(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}
	var req balanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.svc.UpdateCustomerBalance(ctx.Request.Context(), id, *req.Points); err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "balance updated", gin.H{"customer_id": id, "points": *req.Points})
}
