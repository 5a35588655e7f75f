package controller

import (
	"context"

	"github.com/gin-gonic/gin"

	"moysklad_sync/pkg/moysklad"
)

type ReferenceLister interface {
	Stores(ctx context.Context) ([]moysklad.Store, error)
	Organizations(ctx context.Context) ([]moysklad.Organization, error)
	OrderStates(ctx context.Context) ([]moysklad.State, error)
	PriceTypes(ctx context.Context) ([]moysklad.PriceType, error)
	CustomerGroups(ctx context.Context) []moysklad.Group
	Invalidate()
}

// ReferenceController serves the lists the settings screen picks ids from.
type ReferenceController struct {
	svc ReferenceLister
}

func NewReferenceController(svc ReferenceLister) *ReferenceController {
	return &ReferenceController{svc: svc}
}

// GET /api/v1/reference/stores
func (c *ReferenceController) Stores(ctx *gin.Context) {
	respondList(ctx, func(ctx context.Context) (interface{}, error) { return c.svc.Stores(ctx) })
}

// GET /api/v1/reference/organizations
func (c *ReferenceController) Organizations(ctx *gin.Context) {
	respondList(ctx, func(ctx context.Context) (interface{}, error) { return c.svc.Organizations(ctx) })
}

// GET /api/v1/reference/states
func (c *ReferenceController) States(ctx *gin.Context) {
	respondList(ctx, func(ctx context.Context) (interface{}, error) { return c.svc.OrderStates(ctx) })
}

// GET /api/v1/reference/price-types
func (c *ReferenceController) PriceTypes(ctx *gin.Context) {
	respondList(ctx, func(ctx context.Context) (interface{}, error) { return c.svc.PriceTypes(ctx) })
}

// GET /api/v1/reference/groups
func (c *ReferenceController) Groups(ctx *gin.Context) {
	success(ctx, "ok", c.svc.CustomerGroups(ctx.Request.Context()))
}

// Refresh drops the cached lists.
// POST /api/v1/reference/refresh
func (c *ReferenceController) Refresh(ctx *gin.Context) {
	c.svc.Invalidate()
	success(ctx, "reference cache cleared", nil)
}

func respondList(ctx *gin.Context, load func(context.Context) (interface{}, error)) {
	list, err := load(ctx.Request.Context())
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "ok", list)
}
