package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"moysklad_sync/internal/service"
)

type CustomerSyncer interface {
	OnCustomerRegistered(ctx context.Context, userID int64) (*service.CustomerSyncResult, error)
	OnCustomerUpdated(ctx context.Context, userID int64) (*service.CustomerSyncResult, error)
	SyncPriceTypes(ctx context.Context) (*service.PriceTypeSyncResult, error)
	CustomerPrice(ctx context.Context, customerID, productID int64, fallback decimal.Decimal) decimal.Decimal
}

type CustomerController struct {
	svc CustomerSyncer
}

func NewCustomerController(svc CustomerSyncer) *CustomerController {
	return &CustomerController{svc: svc}
}

// Registered
// POST /api/v1/customers/:id/registered
func (c *CustomerController) Registered(ctx *gin.Context) {
	c.sync(ctx, c.svc.OnCustomerRegistered)
}

// Updated
// POST /api/v1/customers/:id/updated
func (c *CustomerController) Updated(ctx *gin.Context) {
	c.sync(ctx, c.svc.OnCustomerUpdated)
}

func (c *CustomerController) sync(ctx *gin.Context, hook func(context.Context, int64) (*service.CustomerSyncResult, error)) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}
	result, err := hook(ctx.Request.Context(), id)
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, result.Message, result)
}

// SyncPriceTypes refreshes the cached price types and customer groups.
// POST /api/v1/customers/price-types/sync
func (c *CustomerController) SyncPriceTypes(ctx *gin.Context) {
	result, err := c.svc.SyncPriceTypes(ctx.Request.Context())
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, result.Message, result)
}

// Price returns the customer's price for a product.
// GET /api/v1/customers/:id/price?product_id=&fallback=
func (c *CustomerController) Price(ctx *gin.Context) {
	id := parseID(ctx, "id")
	if id == 0 {
		return
	}
	productID, err := strconv.ParseInt(ctx.Query("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		fail(ctx, http.StatusBadRequest, "invalid product_id")
		return
	}
	fallback := decimal.Zero
	if raw := ctx.Query("fallback"); raw != "" {
		if fallback, err = decimal.NewFromString(raw); err != nil {
			fail(ctx, http.StatusBadRequest, "invalid fallback price")
			return
		}
	}

	price := c.svc.CustomerPrice(ctx.Request.Context(), id, productID, fallback)
	success(ctx, "ok", gin.H{
		"customer_id": id,
		"product_id":  productID,
		"price":       price.StringFixed(2),
	})
}
