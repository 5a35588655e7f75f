package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

const defaultInventoryBatch = 50

// variantKeyPrefix marks stock entries of variants in the per-batch stock map.
const variantKeyPrefix = "variant_"

// stockLevel is on-hand and reserved quantity of one item.
type stockLevel struct {
	OnHand   float64
	Reserved float64
}

// Available is max(0, on hand - reserved), truncated to whole units.
func (l stockLevel) Available() int {
	v := int(math.Trunc(l.OnHand)) - int(math.Trunc(l.Reserved))
	if v < 0 {
		return 0
	}
	return v
}

// InventoryService copies remote stock levels onto mapped local products.
type InventoryService struct {
	api      StockAPI
	products repository.ProductRepository
	mappings repository.MappingRepository
	options  repository.OptionRepository
	sessions *SessionManager
	cfg      config.InventoryConfig
	now      func() time.Time
}

func NewInventoryService(api StockAPI, products repository.ProductRepository, mappings repository.MappingRepository,
	options repository.OptionRepository, sessions *SessionManager, cfg config.InventoryConfig) *InventoryService {
	return &InventoryService{
		api:      api,
		products: products,
		mappings: mappings,
		options:  options,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SyncInventory walks every mapping in batches. Items with no stock row are
// left untouched, unless they are variable products whose variations can be
// matched by variant id.
func (s *InventoryService) SyncInventory(ctx context.Context) (*SyncResult, error) {
	if !s.cfg.Enabled {
		return nil, ErrSyncDisabled
	}
	if !s.api.IsConfigured() {
		logger.Log.Error("[InventorySync] API not configured")
		return &SyncResult{Success: false, Message: moysklad.ErrAPINotConfigured.Error()}, nil
	}

	sess, err := s.sessions.Begin(ctx, KindInventory)
	if err != nil {
		return nil, err
	}
	defer sess.End()
	ctx = sess.Context()

	logger.Log.Info("[InventorySync] starting inventory synchronization", zap.String("session_id", sess.ID))
	mappings, err := s.mappings.All(ctx)
	if err != nil {
		return &SyncResult{Success: false, Message: failureMessage(err)}, nil
	}
	if len(mappings) == 0 {
		logger.Log.Info("[InventorySync] no products to sync inventory for")
		return &SyncResult{Success: true, Message: "no products to sync inventory for", SessionID: sess.ID}, nil
	}

	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = defaultInventoryBatch
	}

	var stats SyncStats
	for start := 0; start < len(mappings); start += batch {
		if sess.Stopped() {
			logger.Log.Info("[InventorySync] stopped by user")
			return stoppedResult(sess, stats), nil
		}
		end := start + batch
		if end > len(mappings) {
			end = len(mappings)
		}
		if stopped := s.syncBatch(ctx, sess, mappings[start:end], &stats); stopped {
			logger.Log.Info("[InventorySync] stopped by user while updating products")
			return stoppedResult(sess, stats), nil
		}
		sess.SetProgress(end, len(mappings), "")
	}

	if err := s.options.SetTime(ctx, model.OptLastInventorySync, s.now()); err != nil {
		logger.Log.Warn("[InventorySync] failed to record sync time", zap.Error(err))
	}
	logger.Log.Info("[InventorySync] inventory synchronization completed",
		zap.Int("updated", stats.Updated), zap.Int("failed", stats.Failed))

	return &SyncResult{
		Success:   true,
		Message:   fmt.Sprintf("inventory synchronization completed: %d updated, %d failed", stats.Updated, stats.Failed),
		Stats:     SyncStats{Updated: stats.Updated, Failed: stats.Failed},
		SessionID: sess.ID,
	}, nil
}

func (s *InventoryService) syncBatch(ctx context.Context, sess *Session, chunk []model.EntityMapping, stats *SyncStats) bool {
	// variable products also need their variant rows in the report
	variations := make(map[int64][]model.Product)
	ids := make([]string, 0, len(chunk))
	for _, m := range chunk {
		ids = append(ids, m.RemoteID)
		children, err := s.products.ListVariations(ctx, m.LocalID)
		if err != nil || len(children) == 0 {
			continue
		}
		variations[m.LocalID] = children
		for _, c := range children {
			if c.RemoteVariantID != "" {
				ids = append(ids, c.RemoteVariantID)
			}
		}
	}

	rows, err := s.api.StockBatch(ctx, ids, s.cfg.WarehouseID)
	if err != nil {
		logger.Log.Error("[InventorySync] failed to get stock", zap.Error(err))
		stats.Failed += len(chunk)
		return false
	}
	if len(rows) == 0 {
		logger.Log.Debug("[InventorySync] no stock information returned for batch")
		return false
	}
	levels := StockMap(rows)

	for _, m := range chunk {
		if sess.Stopped() {
			return true
		}
		level, ok := levels[m.RemoteID]
		if !ok {
			children := variations[m.LocalID]
			if len(children) == 0 {
				logger.Log.Debug("[InventorySync] no stock information for product", zap.String("remote_id", m.RemoteID))
				continue
			}
			if err := s.updateVariations(ctx, m.LocalID, children, levels); err != nil {
				logger.Log.Error("[InventorySync] variation stock update failed",
					zap.Int64("product_id", m.LocalID), zap.Error(err))
				stats.Failed++
				continue
			}
			stats.Updated++
			continue
		}

		if err := s.products.UpdateStock(ctx, m.LocalID, level.Available()); err != nil {
			logger.Log.Error("[InventorySync] stock update failed",
				zap.Int64("product_id", m.LocalID), zap.Error(err))
			stats.Failed++
			continue
		}
		logger.Log.Debug("[InventorySync] product stock updated",
			zap.Int64("product_id", m.LocalID), zap.Int("available", level.Available()))
		stats.Updated++
	}
	return false
}

// updateVariations sets each variation with a variant_<id> entry and marks
// the parent in stock when any of them is.
func (s *InventoryService) updateVariations(ctx context.Context, parentID int64, children []model.Product, levels map[string]stockLevel) error {
	anyInStock := false
	for _, c := range children {
		level, ok := levels[variantKeyPrefix+c.RemoteVariantID]
		if c.RemoteVariantID == "" || !ok {
			continue
		}
		available := level.Available()
		if err := s.products.UpdateStock(ctx, c.ID, available); err != nil {
			return err
		}
		if available > 0 {
			anyInStock = true
		}
	}
	status := model.StockStatusOutOfStock
	if anyInStock {
		status = model.StockStatusInStock
	}
	return s.products.UpdateFields(ctx, parentID, map[string]interface{}{"stock_status": status})
}

// RefreshProduct updates one mapped product (or its variations) from the
// single-item stock report.
func (s *InventoryService) RefreshProduct(ctx context.Context, remoteID string) error {
	m, err := s.mappings.FindByRemoteID(ctx, remoteID)
	if err != nil || m == nil {
		return err
	}
	rows, err := s.api.ProductStock(ctx, remoteID, s.cfg.WarehouseID)
	if err != nil {
		return err
	}
	if level, ok := StockMap(rows)[remoteID]; ok {
		return s.products.UpdateStock(ctx, m.LocalID, level.Available())
	}
	return nil
}

// RefreshVariation updates one variation from the single-item stock report.
func (s *InventoryService) RefreshVariation(ctx context.Context, variantID string) error {
	variation, err := s.products.FindVariationByRemoteID(ctx, variantID)
	if err != nil || variation == nil {
		return err
	}
	rows, err := s.api.ProductStock(ctx, variantID, s.cfg.WarehouseID)
	if err != nil {
		return err
	}
	if level, ok := StockMap(rows)[variantKeyPrefix+variantID]; ok {
		return s.products.UpdateStock(ctx, variation.ID, level.Available())
	}
	return nil
}

// StockMap keys rows by product id, or variant_<id> for variants. Rows of
// several stores for the same item are summed.
func StockMap(rows []moysklad.StockRow) map[string]stockLevel {
	out := make(map[string]stockLevel, len(rows))
	for _, row := range rows {
		typ, id, ok := moysklad.ParseRef(row.AssortmentHref())
		if !ok {
			continue
		}
		key := id
		switch typ {
		case moysklad.TypeProduct:
		case moysklad.TypeVariant:
			key = variantKeyPrefix + id
		default:
			continue
		}
		l := out[key]
		l.OnHand += row.Stock
		l.Reserved += row.Reserve
		out[key] = l
	}
	return out
}
