package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

// WebhookPath is where the router mounts the callback endpoint.
const WebhookPath = "/api/v1/webhook/moysklad"

// Entity types a callback is registered for.
var webhookEntityTypes = []string{moysklad.TypeProduct, moysklad.TypeVariant, moysklad.TypeCustomerOrder}

// WebhookStats counts what a callback changed.
type WebhookStats struct {
	ProductsUpdated int `json:"products_updated"`
	VariantsUpdated int `json:"variants_updated"`
	OrdersUpdated   int `json:"orders_updated"`
	Failed          int `json:"failed"`
}

type WebhookResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Stats   WebhookStats `json:"stats"`
}

// WebhookRegistration is the outcome of one subscription attempt.
type WebhookRegistration struct {
	EntityType string `json:"type"`
	Action     string `json:"action"`
	Success    bool   `json:"success"`
	ID         string `json:"id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// WebhookService routes remote change notifications to the sync services.
type WebhookService struct {
	api       WebhookAPI
	catalog   *CatalogService
	inventory *InventoryService
	orders    *OrderService
	mappings  repository.MappingRepository
	options   repository.OptionRepository
	cfg       config.WebhookConfig
}

func NewWebhookService(api WebhookAPI, catalog *CatalogService, inventory *InventoryService, orders *OrderService,
	mappings repository.MappingRepository, options repository.OptionRepository, cfg config.WebhookConfig) *WebhookService {
	return &WebhookService{
		api:       api,
		catalog:   catalog,
		inventory: inventory,
		orders:    orders,
		mappings:  mappings,
		options:   options,
		cfg:       cfg,
	}
}

func (s *WebhookService) Enabled() bool { return s.cfg.Enabled }

// VerifySecret accepts any request when no secret is configured.
func (s *WebhookService) VerifySecret(header string) bool {
	return s.cfg.Secret == "" || header == s.cfg.Secret
}

// HandleEvents processes one callback payload. Catalog events and order
// events are handled independently; other types are logged and ignored.
func (s *WebhookService) HandleEvents(ctx context.Context, events []moysklad.WebhookEvent) (*WebhookResult, error) {
	if !s.cfg.Enabled {
		logger.Log.Warn("[Webhook] webhook received but webhooks are disabled")
		return nil, ErrWebhookDisabled
	}

	var catalogEvents, orderEvents []moysklad.WebhookEvent
	for _, ev := range events {
		switch ev.Type() {
		case moysklad.TypeProduct, moysklad.TypeVariant:
			catalogEvents = append(catalogEvents, ev)
		case moysklad.TypeCustomerOrder:
			orderEvents = append(orderEvents, ev)
		default:
			logger.Log.Info("[Webhook] ignoring event",
				zap.String("type", ev.Type()), zap.String("action", ev.Action))
		}
	}
	if len(catalogEvents) == 0 && len(orderEvents) == 0 {
		return nil, ErrUnhandledWebhook
	}

	var stats WebhookStats
	for _, ev := range catalogEvents {
		if ev.Action != "UPDATE" && ev.Action != "CREATE" {
			continue
		}
		if ev.Type() == moysklad.TypeProduct {
			s.handleProduct(ctx, ev.ID(), &stats)
		} else {
			s.handleVariant(ctx, ev.ID(), &stats)
		}
	}

	if len(orderEvents) > 0 {
		n, err := s.orders.HandleIncomingStatusChange(ctx, orderEvents)
		switch {
		case errors.Is(err, ErrSyncDisabled):
			logger.Log.Debug("[Webhook] status sync from remote disabled, order events ignored")
		case err != nil:
			logger.Log.Error("[Webhook] order status reconciliation failed", zap.Error(err))
			stats.Failed += len(orderEvents)
		default:
			stats.OrdersUpdated += n
		}
	}

	logger.Log.Info("[Webhook] webhook processed",
		zap.Int("products", stats.ProductsUpdated), zap.Int("variants", stats.VariantsUpdated),
		zap.Int("orders", stats.OrdersUpdated), zap.Int("failed", stats.Failed))
	return &WebhookResult{
		Success: true,
		Message: fmt.Sprintf("updated %d products, %d variants, %d orders, %d failed",
			stats.ProductsUpdated, stats.VariantsUpdated, stats.OrdersUpdated, stats.Failed),
		Stats: stats,
	}, nil
}

func (s *WebhookService) handleProduct(ctx context.Context, remoteID string, stats *WebhookStats) {
	m, err := s.mappings.FindByRemoteID(ctx, remoteID)
	if err != nil {
		stats.Failed++
		return
	}
	if m == nil {
		return
	}
	outcome, err := s.catalog.SyncProduct(ctx, remoteID)
	if err != nil {
		logger.Log.Error("[Webhook] failed to get product", zap.String("remote_id", remoteID), zap.Error(err))
		stats.Failed++
		return
	}
	if outcome == OutcomeUpdated || outcome == OutcomeCreated {
		stats.ProductsUpdated++
	} else {
		stats.Failed++
	}
	if err := s.inventory.RefreshProduct(ctx, remoteID); err != nil {
		logger.Log.Warn("[Webhook] stock refresh failed", zap.String("remote_id", remoteID), zap.Error(err))
	}
}

func (s *WebhookService) handleVariant(ctx context.Context, variantID string, stats *WebhookStats) {
	outcome, err := s.catalog.SyncVariant(ctx, variantID)
	if err != nil {
		logger.Log.Error("[Webhook] variant update failed", zap.String("variant_id", variantID), zap.Error(err))
		stats.Failed++
		return
	}
	switch outcome {
	case OutcomeUpdated, OutcomeCreated:
		stats.VariantsUpdated++
	case OutcomeFailed:
		stats.Failed++
		return
	default:
		return
	}
	if err := s.inventory.RefreshVariation(ctx, variantID); err != nil {
		logger.Log.Warn("[Webhook] variant stock refresh failed", zap.String("variant_id", variantID), zap.Error(err))
	}
}

// ==================== 订阅注册 ====================

// CallbackURL is the configured public URL plus WebhookPath.
func (s *WebhookService) CallbackURL() string {
	if s.cfg.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PublicURL, "/") + WebhookPath
}

// RegisterWebhooks subscribes url to UPDATE events of products, variants and
// orders. Nothing is registered when a webhook with the same URL exists.
func (s *WebhookService) RegisterWebhooks(ctx context.Context, url string) ([]WebhookRegistration, error) {
	if !s.cfg.Enabled {
		return nil, ErrWebhookDisabled
	}
	if url == "" {
		url = s.CallbackURL()
	}
	if url == "" {
		return nil, errors.New("webhook callback URL is not configured")
	}

	existing, err := s.api.ListWebhooks(ctx)
	if err != nil {
		if moysklad.IsAccessDenied(err) {
			return nil, moysklad.ErrWebhookPermission
		}
		return nil, err
	}
	for _, w := range existing {
		if w.URL == url {
			logger.Log.Info("[Webhook] webhook already registered", zap.String("url", url))
			return nil, nil
		}
	}

	var (
		results []WebhookRegistration
		ids     []string
		denied  int
	)
	for _, typ := range webhookEntityTypes {
		reg := WebhookRegistration{EntityType: typ, Action: "UPDATE"}
		w, err := s.api.RegisterWebhook(ctx, typ, "UPDATE", url)
		if err != nil {
			if errors.Is(err, moysklad.ErrWebhookPermission) {
				denied++
			}
			reg.Message = err.Error()
			logger.Log.Error("[Webhook] webhook registration failed", zap.String("type", typ), zap.Error(err))
		} else {
			reg.Success, reg.ID = true, w.ID
			ids = append(ids, w.ID)
		}
		results = append(results, reg)
	}
	if denied == len(webhookEntityTypes) {
		return results, moysklad.ErrWebhookPermission
	}
	if len(ids) > 0 {
		if err := s.options.SetJSON(ctx, model.OptWebhooks, ids); err != nil {
			logger.Log.Warn("[Webhook] failed to record webhook ids", zap.Error(err))
		}
	}
	return results, nil
}

// UnregisterWebhooks removes the webhooks recorded by RegisterWebhooks.
func (s *WebhookService) UnregisterWebhooks(ctx context.Context) (int, error) {
	var ids []string
	if _, err := s.options.GetJSON(ctx, model.OptWebhooks, &ids); err != nil {
		return 0, err
	}
	removed := 0
	var remaining []string
	for _, id := range ids {
		if err := s.api.DeleteWebhook(ctx, id); err != nil && !moysklad.IsNotFound(err) {
			logger.Log.Warn("[Webhook] webhook delete failed", zap.String("id", id), zap.Error(err))
			remaining = append(remaining, id)
			continue
		}
		removed++
	}
	return removed, s.options.SetJSON(ctx, model.OptWebhooks, remaining)
}
