package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/service"
	"moysklad_sync/pkg/moysklad"
)

type WebhookHandler interface {
	Enabled() bool
	HandleEvents(ctx context.Context, events []moysklad.WebhookEvent) (*service.WebhookResult, error)
	CallbackURL() string
	RegisterWebhooks(ctx context.Context, url string) ([]service.WebhookRegistration, error)
	UnregisterWebhooks(ctx context.Context) (int, error)
}

// EventPublisher hands callback events to the queue instead of handling
// them inline.
type EventPublisher interface {
	Publish(ctx context.Context, events []moysklad.WebhookEvent) error
}

// WebhookController 接收 MoySklad 回调
type WebhookController struct {
	svc       WebhookHandler
	publisher EventPublisher
}

func NewWebhookController(svc WebhookHandler) *WebhookController {
	return &WebhookController{svc: svc}
}

// SetPublisher switches callbacks to asynchronous processing.
func (c *WebhookController) SetPublisher(p EventPublisher) {
	c.publisher = p
}

// Callback
// @Summary MoySklad webhook callback
// @Tags Webhook
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string false "shared secret"
// @Param request body moysklad.WebhookPayload true "events"
// @Success 200 {object} map[string]interface{}
// @Success 202 {object} map[string]interface{} "queued"
// @Failure 401 {object} map[string]interface{} "bad secret"
// @Failure 403 {object} map[string]interface{} "webhooks disabled"
// @Router /webhook/moysklad [post]
func (c *WebhookController) Callback(ctx *gin.Context) {
	if !c.svc.Enabled() {
		fail(ctx, http.StatusForbidden, service.ErrWebhookDisabled.Error())
		return
	}

	var payload moysklad.WebhookPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		fail(ctx, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx.Request.Context(), payload.Events); err != nil {
			logger.Log.Error("[Webhook] enqueue failed", zap.Int("events", len(payload.Events)), zap.Error(err))
			fail(ctx, http.StatusInternalServerError, "failed to enqueue webhook")
			return
		}
		ctx.JSON(http.StatusAccepted, gin.H{"code": 202, "message": "queued"})
		return
	}

	result, err := c.svc.HandleEvents(context.WithoutCancel(ctx.Request.Context()), payload.Events)
	if errors.Is(err, service.ErrUnhandledWebhook) {
		// 200 so the remote side does not retry a payload we will never handle
		success(ctx, err.Error(), nil)
		return
	}
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, result.Message, result.Stats)
}

type registerWebhooksRequest struct {
	URL string `json:"url"`
}

// Register subscribes the callback URL. The body URL overrides the
// configured public URL.
// @Summary Register product, variant and order webhooks
// @Tags Webhook
// @Accept json
// @Produce json
// @Param request body registerWebhooksRequest false "callback url override"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "no callback url"
// @Failure 502 {object} map[string]interface{} "missing rights"
// @Security BearerAuth
// @Router /webhooks [post]
func (c *WebhookController) Register(ctx *gin.Context) {
	var req registerWebhooksRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			fail(ctx, http.StatusBadRequest, err.Error())
			return
		}
	}
	url := req.URL
	if url == "" {
		url = c.svc.CallbackURL()
	}
	if url == "" {
		fail(ctx, http.StatusBadRequest, "webhook url is not configured")
		return
	}

	regs, err := c.svc.RegisterWebhooks(ctx.Request.Context(), url)
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "webhooks registered", gin.H{"url": url, "webhooks": regs})
}

// Unregister
// @Summary Remove webhooks pointing at this service
// @Tags Webhook
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /webhooks [delete]
func (c *WebhookController) Unregister(ctx *gin.Context) {
	removed, err := c.svc.UnregisterWebhooks(ctx.Request.Context())
	if err != nil {
		failErr(ctx, err)
		return
	}
	success(ctx, "webhooks removed", gin.H{"removed": removed})
}
