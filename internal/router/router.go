package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "moysklad_sync/docs"
	"moysklad_sync/internal/controller"
	"moysklad_sync/internal/middleware"
	"moysklad_sync/internal/service"
)

// Controllers 路由依赖的全部控制器
type Controllers struct {
	Sync      *controller.SyncController
	Webhook   *controller.WebhookController
	Order     *controller.OrderController
	Customer  *controller.CustomerController
	Bonus     *controller.BonusController
	Reference *controller.ReferenceController
	Log       *controller.LogController
}

// Options tune the middleware in front of the routes.
type Options struct {
	// VerifyWebhookSecret checks the X-Webhook-Secret header of callbacks.
	VerifyWebhookSecret func(header string) bool
	// SyncCooldown is the minimum gap between manual syncs of one kind.
	SyncCooldown time.Duration
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctl *Controllers, opts Options) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// http://localhost:8080/swagger/index.html
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MoySklad 回调，不走 JWT
	verify := opts.VerifyWebhookSecret
	if verify == nil {
		verify = func(string) bool { return true }
	}
	r.POST(service.WebhookPath, middleware.WebhookSecret(verify), ctl.Webhook.Callback)

	api := r.Group("/api/v1", middleware.JWTAuth())
	{
		cooldown := opts.SyncCooldown

		// sync 手动同步
		sync := api.Group("/sync")
		{
			sync.POST("/products", middleware.SyncRateLimit(middleware.SyncTypeProducts, cooldown), ctl.Sync.SyncProducts)
			sync.POST("/products/:remote_id", ctl.Sync.SyncProduct)
			sync.POST("/categories", middleware.SyncRateLimit(middleware.SyncTypeProducts, cooldown), ctl.Sync.SyncCategories)
			sync.POST("/inventory", middleware.SyncRateLimit(middleware.SyncTypeInventory, cooldown), ctl.Sync.SyncInventory)
			sync.POST("/orders", middleware.SyncRateLimit(middleware.SyncTypeOrders, cooldown), ctl.Sync.SyncPendingOrders)
			sync.POST("/stop", ctl.Sync.Stop)
			sync.POST("/reset-limits", ctl.Sync.ResetLimits)
			sync.GET("/status", ctl.Sync.Status)
			sync.GET("/test-connection", ctl.Sync.TestConnection)
		}

		tasks := api.Group("/tasks")
		{
			tasks.GET("", ctl.Sync.Tasks)
			tasks.POST("/:name/run", ctl.Sync.RunTask)
		}

		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("", ctl.Webhook.Register)
			webhooks.DELETE("", ctl.Webhook.Unregister)
		}

		orders := api.Group("/orders")
		{
			orders.POST("/:id/created", ctl.Order.Created)
			orders.PUT("/:id/status", ctl.Order.UpdateStatus)
			orders.POST("/:id/sync", ctl.Order.Sync)
		}

		customers := api.Group("/customers")
		{
			customers.POST("/:id/registered", ctl.Customer.Registered)
			customers.POST("/:id/updated", ctl.Customer.Updated)
			customers.GET("/:id/price", ctl.Customer.Price)
			customers.POST("/price-types/sync",
				middleware.SyncRateLimit(middleware.SyncTypePriceTypes, cooldown), ctl.Customer.SyncPriceTypes)
		}

		bonus := api.Group("/bonus")
		{
			bonus.POST("/attributes", ctl.Bonus.RegisterAttributes)
			bonus.PUT("/customers/:id/balance", ctl.Bonus.UpdateBalance)
		}

		reference := api.Group("/reference")
		{
			reference.GET("/stores", ctl.Reference.Stores)
			reference.GET("/organizations", ctl.Reference.Organizations)
			reference.GET("/states", ctl.Reference.States)
			reference.GET("/price-types", ctl.Reference.PriceTypes)
			reference.GET("/groups", ctl.Reference.Groups)
			reference.POST("/refresh", ctl.Reference.Refresh)
		}

		logs := api.Group("/logs")
		{
			logs.GET("", ctl.Log.List)
			logs.GET("/count", ctl.Log.Count)
			logs.DELETE("", ctl.Log.Clear)
		}
	}
}
