package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

// Attribute marking non-stock items; products whose value is ServiceItemValue are not imported.
const (
	ItemTypeAttribute = "Тип номенклатуры"
	ServiceItemValue  = "Услуга"
)

// Paging and pacing of the two catalog modes.
const (
	standardPageSize    = 10
	standardRetries     = 3
	acceleratedPageSize = 500
	acceleratedRetries  = 3
)

// CatalogService imports remote products into the local catalog.
type CatalogService struct {
	api        CatalogAPI
	products   repository.ProductRepository
	mappings   repository.MappingRepository
	options    repository.OptionRepository
	categories *CategoryService
	images     *ImageService
	sessions   *SessionManager
	cfg        config.CatalogConfig

	sleep Sleeper
	now   func() time.Time
}

func NewCatalogService(api CatalogAPI, products repository.ProductRepository, mappings repository.MappingRepository,
	options repository.OptionRepository, categories *CategoryService, images *ImageService,
	sessions *SessionManager, cfg config.CatalogConfig) *CatalogService {
	return &CatalogService{
		api:        api,
		products:   products,
		mappings:   mappings,
		options:    options,
		categories: categories,
		images:     images,
		sessions:   sessions,
		cfg:        cfg,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// SetSleep replaces the pacing sleeper (tests).
func (s *CatalogService) SetSleep(fn Sleeper) { s.sleep = fn }

// pause waits d unless the session is stopped first.
func (s *CatalogService) pause(sess *Session, d time.Duration) {
	_ = s.sleep(sess.PaceContext(), d)
}

// ==================== 批量同步 ====================

// SyncProducts runs categories first, then the product pass in the
// configured mode.
func (s *CatalogService) SyncProducts(ctx context.Context) (*SyncResult, error) {
	if !s.cfg.Enabled {
		logger.Log.Info("[CatalogSync] product synchronization is disabled")
		return nil, ErrSyncDisabled
	}
	if !s.api.IsConfigured() {
		logger.Log.Error("[CatalogSync] product sync failed: API not configured")
		return &SyncResult{Success: false, Message: moysklad.ErrAPINotConfigured.Error()}, nil
	}

	sess, err := s.sessions.Begin(ctx, KindProducts)
	if err != nil {
		return nil, err
	}
	defer sess.End()

	logger.Log.Info("[CatalogSync] starting product synchronization",
		zap.String("mode", s.cfg.Mode), zap.String("session_id", sess.ID))
	start := s.now()

	if s.cfg.SyncGroups && s.categories != nil {
		s.categories.run(sess)
	}

	var stats SyncStats
	var stopped bool
	if s.cfg.Mode == config.ModeAccelerated {
		stopped = s.runAccelerated(sess, &stats)
	} else {
		stopped = s.runStandard(sess, &stats, 0)
	}
	elapsed := s.now().Sub(start).Seconds()

	if stopped {
		logger.Log.Info("[CatalogSync] stopped by user",
			zap.Int("created", stats.Created), zap.Int("updated", stats.Updated))
		r := stoppedResult(sess, stats)
		r.ExecutionTime = elapsed
		return r, nil
	}

	if err := s.options.SetTime(sess.Context(), model.OptLastProductSync, s.now()); err != nil {
		logger.Log.Warn("[CatalogSync] failed to record sync time", zap.Error(err))
	}
	logger.Log.Info("[CatalogSync] product synchronization completed",
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Float64("execution_time", elapsed),
	)

	msg := fmt.Sprintf("synchronization completed: %d created, %d updated, %d failed, %d skipped (execution time: %.2f s)",
		stats.Created, stats.Updated, stats.Failed, stats.Skipped, elapsed)
	if stats.Failed > 0 {
		msg += " Check the error log for details."
	}
	return &SyncResult{
		Success:       true,
		Message:       msg,
		Stats:         stats,
		ExecutionTime: elapsed,
		SessionID:     sess.ID,
	}, nil
}

// runStandard pages by 10 starting at offset. A page that still fails after
// retries is skipped. It reports whether the pass was stopped.
func (s *CatalogService) runStandard(sess *Session, stats *SyncStats, offset int) bool {
	ctx := sess.Context()
	first := offset
	total := 0

	for {
		if sess.Stopped() {
			return true
		}
		if offset > first {
			s.pause(sess, time.Second)
		}

		page, err := s.fetchStandard(sess, offset)
		if sess.Stopped() {
			return true
		}
		if err != nil {
			logger.Log.Error("[CatalogSync] page failed after retries, skipping",
				zap.Int("offset", offset), zap.Error(err))
			offset += standardPageSize
			if offset >= total {
				return false
			}
			continue
		}
		total = page.Meta.Size
		if len(page.Rows) == 0 {
			return false
		}

		for i := range page.Rows {
			p := &page.Rows[i]
			if i > 0 {
				s.pause(sess, 200*time.Millisecond)
			}
			if sess.Stopped() {
				return true
			}
			stats.add(s.processProduct(ctx, sess, p))
			sess.SetProgress(offset+i+1, total, p.Name)
			if (i+1)%5 == 0 {
				s.pause(sess, time.Second)
			}
		}

		offset += standardPageSize
		if offset >= total {
			return false
		}
	}
}

// fetchStandard retries with 2s·n between attempts plus 5s after a rate-limit
// error. A stop ends the retries; the call in flight always completes.
func (s *CatalogService) fetchStandard(sess *Session, offset int) (*moysklad.ProductPage, error) {
	var lastErr error
	for attempt := 0; attempt < standardRetries; attempt++ {
		if attempt > 0 {
			logger.Log.Warn("[CatalogSync] retrying product page", zap.Int("attempt", attempt), zap.Int("offset", offset))
			s.pause(sess, time.Duration(2*attempt)*time.Second)
			if sess.Stopped() {
				return nil, ErrStopped
			}
		}
		page, err := s.api.ListProducts(sess.Context(), standardPageSize, offset)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if moysklad.IsRateLimit(err) {
			s.pause(sess, 5*time.Second)
		}
	}
	return nil, lastErr
}

// runAccelerated pages by 500. When a page cannot be fetched it pauses 5s
// and continues in standard mode from the same offset.
func (s *CatalogService) runAccelerated(sess *Session, stats *SyncStats) bool {
	ctx := sess.Context()
	offset := 0

	for {
		if sess.Stopped() {
			return true
		}

		page, err := s.fetchAccelerated(sess, offset)
		if sess.Stopped() {
			return true
		}
		if err != nil {
			logger.Log.Error("[CatalogSync] accelerated fetch failed, switching to standard mode",
				zap.Int("offset", offset), zap.Error(err))
			s.pause(sess, 5*time.Second)
			return s.runStandard(sess, stats, offset)
		}
		if len(page.Rows) == 0 {
			return false
		}
		total := page.Meta.Size

		for i := range page.Rows {
			p := &page.Rows[i]
			n := i + 1
			if n > 1 && n%5 == 0 {
				s.pause(sess, 200*time.Millisecond)
			}
			if n > 1 && n%50 == 0 {
				s.pause(sess, 500*time.Millisecond)
			}
			if sess.Stopped() {
				return true
			}
			stats.add(s.processProduct(ctx, sess, p))
			sess.SetProgress(offset+n, total, p.Name)
		}

		if total <= offset+len(page.Rows) {
			return false
		}
		offset += len(page.Rows)
		s.pause(sess, time.Second)
	}
}

// fetchAccelerated doubles the delay from 2s, with a 5s floor once rate limited.
func (s *CatalogService) fetchAccelerated(sess *Session, offset int) (*moysklad.ProductPage, error) {
	delay := 2 * time.Second
	var lastErr error
	for attempt := 0; attempt < acceleratedRetries; attempt++ {
		if attempt > 0 {
			s.pause(sess, delay)
			delay *= 2
			if sess.Stopped() {
				return nil, ErrStopped
			}
		}
		page, err := s.api.ListProducts(sess.Context(), acceleratedPageSize, offset)
		if err == nil {
			return page, nil
		}
		lastErr = err
		logger.Log.Warn("[CatalogSync] accelerated page attempt failed",
			zap.Int("attempt", attempt+1), zap.Error(err))
		if moysklad.IsRateLimit(err) && delay < 5*time.Second {
			delay = 5 * time.Second
		}
	}
	return nil, lastErr
}

// ==================== 单个商品 ====================

// ProcessProduct imports one remote product outside a bulk pass.
func (s *CatalogService) ProcessProduct(ctx context.Context, p *moysklad.Product) Outcome {
	return s.processProduct(ctx, nil, p)
}

// SyncProduct fetches and imports one remote product.
func (s *CatalogService) SyncProduct(ctx context.Context, remoteID string) (Outcome, error) {
	p, err := s.api.GetProduct(ctx, remoteID)
	if err != nil {
		return OutcomeFailed, err
	}
	return s.processProduct(ctx, nil, p), nil
}

func (s *CatalogService) processProduct(ctx context.Context, sess *Session, p *moysklad.Product) Outcome {
	if v, ok := p.AttributeValue(ItemTypeAttribute); ok && v == ServiceItemValue {
		logger.Log.Debug("[CatalogSync] skipping service item", zap.String("name", p.Name))
		return OutcomeSkipped
	}

	existing, err := s.findLocal(ctx, p)
	if err != nil {
		logger.Log.Error("[CatalogSync] product lookup failed",
			zap.String("name", p.Name), zap.String("remote_id", p.ID), zap.Error(err))
		return OutcomeFailed
	}

	var outcome Outcome
	var local *model.Product
	if existing != nil {
		local, err = s.updateLocal(ctx, existing, p)
		outcome = OutcomeUpdated
	} else {
		local, err = s.createLocal(ctx, p)
		outcome = OutcomeCreated
	}
	if err != nil {
		logger.Log.Error("[CatalogSync] product write failed",
			zap.String("name", p.Name), zap.String("remote_id", p.ID), zap.Error(err))
		return OutcomeFailed
	}

	if err := s.mappings.Upsert(ctx, local.ID, p.ID, p.Snapshot()); err != nil {
		logger.Log.Error("[CatalogSync] mapping upsert failed", zap.String("remote_id", p.ID), zap.Error(err))
		return OutcomeFailed
	}

	if s.cfg.SyncVariants && p.VariantsCount > 0 {
		if err := s.syncVariants(ctx, local, p); err != nil {
			logger.Log.Warn("[CatalogSync] variant sync failed",
				zap.String("name", p.Name), zap.Error(err))
		}
	}
	if s.cfg.SyncImages && s.images != nil {
		if _, err := s.images.SyncProductImages(ctx, sess, local.ID, p, s.cfg.SyncAllImages); err != nil {
			logger.Log.Warn("[CatalogSync] image sync failed",
				zap.String("name", p.Name), zap.Error(err))
		}
	}

	logger.Log.Info("[CatalogSync] product processed",
		zap.String("name", p.Name), zap.String("result", string(outcome)), zap.Int64("local_id", local.ID))
	return outcome
}

// findLocal resolves the mapping first and falls back to the SKU. A mapping
// pointing at a deleted local product is treated as absent.
func (s *CatalogService) findLocal(ctx context.Context, p *moysklad.Product) (*model.Product, error) {
	m, err := s.mappings.FindByRemoteID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		local, err := s.products.GetByID(ctx, m.LocalID)
		if err != nil {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
		logger.Log.Warn("[CatalogSync] mapping points at a missing product",
			zap.String("remote_id", p.ID), zap.Int64("local_id", m.LocalID))
	}

	if p.Code == "" {
		return nil, nil
	}
	local, err := s.products.FindBySKU(ctx, p.Code)
	if err != nil || local == nil {
		return nil, err
	}
	logger.Log.Info("[CatalogSync] product matched by SKU",
		zap.String("sku", p.Code), zap.Int64("local_id", local.ID))
	if err := s.mappings.Upsert(ctx, local.ID, p.ID, p.Snapshot()); err != nil {
		return nil, err
	}
	return local, nil
}

func (s *CatalogService) createLocal(ctx context.Context, p *moysklad.Product) (*model.Product, error) {
	local := &model.Product{
		Type:       model.ProductTypeSimple,
		Status:     model.ProductStatusPublish,
		Name:       p.Name,
		SKU:        p.Code,
		CategoryID: s.categoryID(ctx, p),
	}
	if price, ok := SelectPrice(p.SalePrices, s.cfg.PriceTypeID); ok {
		local.RegularPrice = price
	}
	if s.cfg.SyncDescription {
		local.Description = p.Description
	}
	if err := s.products.Create(ctx, local); err != nil {
		return nil, err
	}
	if s.cfg.SyncAttributes {
		if err := s.replaceCustomAttributes(ctx, local.ID, p); err != nil {
			return nil, err
		}
	}
	return local, nil
}

func (s *CatalogService) updateLocal(ctx context.Context, local *model.Product, p *moysklad.Product) (*model.Product, error) {
	if s.cfg.SyncName {
		local.Name = p.Name
	}
	if p.Code != "" {
		local.SKU = p.Code
	}
	if price, ok := SelectPrice(p.SalePrices, s.cfg.PriceTypeID); ok {
		local.RegularPrice = price
	}
	if s.cfg.SyncDescription {
		local.Description = p.Description
	}
	if id := s.categoryID(ctx, p); id != 0 {
		local.CategoryID = id
	}
	// associations are written separately
	local.Attributes, local.Images = nil, nil
	if err := s.products.Update(ctx, local); err != nil {
		return nil, err
	}
	if s.cfg.SyncAttributes {
		if err := s.replaceCustomAttributes(ctx, local.ID, p); err != nil {
			return nil, err
		}
	}
	return local, nil
}

func (s *CatalogService) categoryID(ctx context.Context, p *moysklad.Product) int64 {
	if s.categories == nil {
		return 0
	}
	return s.categories.LocalID(ctx, p.FolderID())
}

// replaceCustomAttributes rewrites the plain attributes of a product and
// keeps its variation selectors.
func (s *CatalogService) replaceCustomAttributes(ctx context.Context, productID int64, p *moysklad.Product) error {
	current, err := s.products.ListAttributes(ctx, productID)
	if err != nil {
		return err
	}
	var attrs []model.ProductAttribute
	for _, a := range current {
		if a.ForVariations {
			attrs = append(attrs, a)
		}
	}
	for _, a := range p.Attributes {
		value := a.StringValue()
		if value == "" {
			continue
		}
		attrs = append(attrs, model.ProductAttribute{
			Name:     a.Name,
			Value:    value,
			Position: len(attrs),
			Visible:  true,
		})
	}
	return s.products.ReplaceAttributes(ctx, productID, attrs)
}

// ==================== 价格 ====================

// SelectPrice converts the sale price of the given type (or the first one
// when priceTypeID is empty or absent) from minor units.
func SelectPrice(prices []moysklad.SalePrice, priceTypeID string) (decimal.Decimal, bool) {
	if len(prices) == 0 {
		return decimal.Zero, false
	}
	chosen := prices[0]
	if priceTypeID != "" {
		for _, sp := range prices {
			if sp.PriceType != nil && sp.PriceType.ID == priceTypeID {
				chosen = sp
				break
			}
		}
	}
	return FromMinor(chosen.Value), true
}

// FromMinor converts kopecks to roubles.
func FromMinor(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Shift(-2)
}

// ToMinor converts an amount to kopecks, rounding half away from zero.
func ToMinor(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
