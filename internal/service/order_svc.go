package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

const (
	orderMomentLayout = "2006-01-02 15:04:05"

	// pendingMaxAttempts stops retrying an order that keeps failing.
	pendingMaxAttempts = 5
	pendingBatchLimit  = 50

	noteOrderSynced       = "Order synchronized with MoySklad"
	noteStatusSynced      = "Order status synchronized with MoySklad: %s"
	noteStatusFromRemote  = "Status updated from MoySklad"
	webhookActionUpdate   = "UPDATE"
	placeholderEmailFmt   = "customer_%d@example.com"
	guestExternalCodeFmt  = "guest_%d"
	counterpartyDescrFmt  = "Storefront customer created from order #%s"
	orderDescriptionFmt   = "Storefront order #%s from %s"
	orderDescriptionStamp = "2006-01-02 15:04"
)

// OrderService pushes storefront orders to the remote system and pulls
// status changes back.
type OrderService struct {
	api      OrderAPI
	orders   repository.OrderRepository
	products repository.ProductRepository
	mappings repository.MappingRepository
	bonus    *BonusService
	sessions *SessionManager
	cfg      config.OrderConfig
	now      func() time.Time
}

// NewOrderService creates the service. bonus may be nil.
func NewOrderService(api OrderAPI, orders repository.OrderRepository, products repository.ProductRepository,
	mappings repository.MappingRepository, bonus *BonusService, sessions *SessionManager, cfg config.OrderConfig) *OrderService {
	return &OrderService{
		api:      api,
		orders:   orders,
		products: products,
		mappings: mappings,
		bonus:    bonus,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ==================== 生命周期钩子 ====================

// OnOrderCreated syncs a new order right away. With a sync delay the order
// is left for SyncPendingOrders.
func (s *OrderService) OnOrderCreated(ctx context.Context, orderID int64) error {
	if !s.cfg.Enabled || !s.api.IsConfigured() {
		return nil
	}
	if s.cfg.SyncDelay > 0 {
		logger.Log.Info("[OrderSync] order sync deferred",
			zap.Int64("order_id", orderID), zap.Duration("delay", s.cfg.SyncDelay))
		return nil
	}
	_, err := s.CreateOrUpdateOrder(ctx, orderID)
	return err
}

// OnOrderStatusChanged pushes a local status change. Orders not linked yet
// are created instead.
func (s *OrderService) OnOrderStatusChanged(ctx context.Context, orderID int64, status string) error {
	if !s.cfg.Enabled || !s.cfg.StatusSync || !s.api.IsConfigured() {
		return nil
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %d not found", orderID)
	}
	if !order.IsLinked() {
		_, err = s.CreateOrUpdateOrder(ctx, orderID)
		return err
	}
	_, err = s.UpdateOrderStatus(ctx, orderID, order.RemoteOrderID, status)
	return err
}

// ChangeStatus sets the local status and notifies the remote side.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID int64, status string) error {
	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return err
	}
	return s.OnOrderStatusChanged(ctx, orderID, status)
}

// ==================== 推送订单 ====================

// CreateOrUpdateOrder creates the remote order, or replaces it with PUT when
// the order is already linked. It reports whether the remote side changed.
func (s *OrderService) CreateOrUpdateOrder(ctx context.Context, orderID int64) (bool, error) {
	if s.sessions.StopPending() {
		logger.Log.Info("[OrderSync] stop requested, order sync skipped", zap.Int64("order_id", orderID))
		return false, ErrStopped
	}
	return s.createOrUpdate(ctx, nil, orderID)
}

func (s *OrderService) createOrUpdate(ctx context.Context, sess *Session, orderID int64) (bool, error) {
	if sess.Stopped() {
		return false, ErrStopped
	}
	if !s.api.IsConfigured() {
		return false, moysklad.ErrAPINotConfigured
	}
	order, err := s.orders.GetByIDWithItems(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, fmt.Errorf("order %d not found", orderID)
	}

	ok, err := s.push(ctx, order)
	if err != nil {
		logger.Log.Error("[OrderSync] order sync failed", zap.Int64("order_id", orderID), zap.Error(err))
		if markErr := s.orders.MarkSyncFailed(ctx, orderID, err.Error()); markErr != nil {
			logger.Log.Warn("[OrderSync] failed to record sync error", zap.Error(markErr))
		}
		return false, err
	}
	return ok, nil
}

func (s *OrderService) push(ctx context.Context, order *model.Order) (bool, error) {
	cp, err := s.api.FindOrCreateCounterparty(ctx, s.counterpartyFor(order))
	if err != nil {
		return false, fmt.Errorf("counterparty: %w", err)
	}

	positions, err := s.positions(ctx, order)
	if err != nil {
		return false, err
	}
	if len(positions) == 0 {
		return false, ErrNoPositions
	}

	payload := s.payload(order, cp, positions)
	s.bonus.DecorateOrder(ctx, order, &payload)

	if order.IsLinked() {
		if _, err := s.api.UpdateOrder(ctx, order.RemoteOrderID, payload); err != nil {
			return false, err
		}
		if err := s.orders.MarkSynced(ctx, order.ID); err != nil {
			return false, err
		}
		logger.Log.Info("[OrderSync] order updated",
			zap.Int64("order_id", order.ID), zap.String("remote_id", order.RemoteOrderID))
		return true, nil
	}

	created, err := s.api.CreateOrder(ctx, payload)
	if err != nil {
		return false, err
	}
	if created == nil || created.ID == "" {
		return false, errors.New("invalid response from remote API: order id missing")
	}
	if err := s.orders.LinkRemote(ctx, order.ID, created.ID); err != nil {
		return false, err
	}
	if err := s.orders.MarkSynced(ctx, order.ID); err != nil {
		return false, err
	}
	if err := s.orders.AddNote(ctx, order.ID, noteOrderSynced); err != nil {
		logger.Log.Warn("[OrderSync] failed to add order note", zap.Error(err))
	}
	logger.Log.Info("[OrderSync] order created",
		zap.Int64("order_id", order.ID), zap.String("remote_id", created.ID))
	return true, nil
}

// counterpartyFor builds the find-or-create payload. Without phone and email
// a placeholder address keyed by the order id is used.
func (s *OrderService) counterpartyFor(order *model.Order) moysklad.Counterparty {
	cp := moysklad.Counterparty{
		Name:          strings.TrimSpace(order.BillingFirstName + " " + order.BillingLastName),
		Email:         strings.TrimSpace(order.BillingEmail),
		Phone:         strings.TrimSpace(order.BillingPhone),
		Description:   fmt.Sprintf(counterpartyDescrFmt, orderNumber(order)),
		ActualAddress: order.BillingAddress(),
	}
	if cp.Email == "" && cp.Phone == "" {
		cp.Email = fmt.Sprintf(placeholderEmailFmt, order.ID)
	}
	if cp.Name == "" {
		cp.Name = cp.Email
		if cp.Name == "" {
			cp.Name = cp.Phone
		}
	}
	if order.CustomerID > 0 {
		cp.ExternalCode = strconv.FormatInt(order.CustomerID, 10)
	} else {
		cp.ExternalCode = fmt.Sprintf(guestExternalCodeFmt, order.ID)
	}
	if s.cfg.CustomerGroupID != "" {
		cp.Group = moysklad.NewRef(s.api.BaseURL(), "/entity/group/"+s.cfg.CustomerGroupID, moysklad.TypeGroup)
	}
	return cp
}

// positions resolves each line to a remote assortment: the variation's
// mapping, the parent's mapping, then an auto-created product. Lines that
// cannot be resolved are dropped.
func (s *OrderService) positions(ctx context.Context, order *model.Order) ([]moysklad.Position, error) {
	var out []moysklad.Position
	for i := range order.Items {
		item := &order.Items[i]
		pos, err := s.position(ctx, order, item)
		if err != nil {
			return nil, err
		}
		if pos != nil {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (s *OrderService) position(ctx context.Context, order *model.Order, item *model.OrderItem) (*moysklad.Position, error) {
	targetID := item.ProductID
	if item.VariationID > 0 {
		targetID = item.VariationID
	}

	remoteID, err := s.mappedRemoteID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if remoteID == "" && item.VariationID > 0 {
		if remoteID, err = s.mappedRemoteID(ctx, item.ProductID); err != nil {
			return nil, err
		}
	}
	if remoteID == "" {
		if !s.cfg.AutoCreateProducts {
			logger.Log.Warn("[OrderSync] product not mapped, line skipped",
				zap.Int64("order_id", order.ID), zap.Int64("product_id", targetID))
			return nil, nil
		}
		if remoteID = s.autoCreate(ctx, targetID, item); remoteID == "" {
			return nil, nil
		}
	}

	base := s.api.BaseURL()
	assortment := moysklad.NewRef(base, "/entity/product/"+remoteID, moysklad.TypeProduct)
	if item.VariationID > 0 {
		variation, err := s.products.GetByID(ctx, item.VariationID)
		if err != nil {
			return nil, err
		}
		if variation != nil && variation.RemoteVariantID != "" {
			assortment = moysklad.NewRef(base, "/entity/variant/"+variation.RemoteVariantID, moysklad.TypeVariant)
		}
	}

	return &moysklad.Position{
		Quantity:   float64(item.Quantity),
		Price:      float64(ToMinor(item.UnitPrice())),
		Discount:   0,
		Vat:        0,
		Assortment: assortment,
	}, nil
}

func (s *OrderService) mappedRemoteID(ctx context.Context, localID int64) (string, error) {
	if localID <= 0 {
		return "", nil
	}
	m, err := s.mappings.FindByLocalID(ctx, localID)
	if err != nil || m == nil {
		return "", err
	}
	return m.RemoteID, nil
}

// autoCreate creates the remote product for an unmapped line, first with a
// sale price and then with name and code only, and records the mapping.
func (s *OrderService) autoCreate(ctx context.Context, localID int64, item *model.OrderItem) string {
	name, sku, description := item.Name, "", ""
	price := item.UnitPrice()
	if p, err := s.products.GetByID(ctx, localID); err == nil && p != nil {
		if p.Name != "" {
			name = p.Name
		}
		sku, description = p.SKU, p.Description
		if !p.RegularPrice.IsZero() {
			price = p.RegularPrice
		}
	}

	created, err := s.api.CreateSimpleProduct(ctx, name, ToMinor(price), sku, description)
	if err != nil {
		logger.Log.Warn("[OrderSync] priced product create failed, retrying with name and code",
			zap.Int64("product_id", localID), zap.Error(err))
		created, err = s.api.CreateProduct(ctx, moysklad.NewProduct{Name: name, Code: sku})
	}
	if err != nil || created == nil || created.ID == "" {
		logger.Log.Error("[OrderSync] product auto-create failed, line skipped",
			zap.Int64("product_id", localID), zap.Error(err))
		return ""
	}

	if err := s.mappings.Upsert(ctx, localID, created.ID, created.Snapshot()); err != nil {
		logger.Log.Error("[OrderSync] failed to persist mapping for created product",
			zap.Int64("product_id", localID), zap.String("remote_id", created.ID), zap.Error(err))
	}
	logger.Log.Info("[OrderSync] product created remotely for order line",
		zap.Int64("product_id", localID), zap.String("remote_id", created.ID))
	return created.ID
}

func (s *OrderService) payload(order *model.Order, cp *moysklad.Counterparty, positions []moysklad.Position) moysklad.CustomerOrder {
	number := orderNumber(order)
	created := order.CreatedAt.UTC()
	base := s.api.BaseURL()

	agent := moysklad.NewRef(base, "/entity/counterparty/"+cp.ID, moysklad.TypeCounterparty)
	if cp.Meta != nil && cp.Meta.Href != "" {
		agent = &moysklad.MetaRef{Meta: *cp.Meta}
	}

	out := moysklad.CustomerOrder{
		Name:         s.cfg.Prefix + number,
		ExternalCode: strconv.FormatInt(order.ID, 10),
		Moment:       created.Format(orderMomentLayout),
		Description:  fmt.Sprintf(orderDescriptionFmt, number, created.Format(orderDescriptionStamp)),
		Agent:        agent,
		Positions:    positions,
	}
	if s.cfg.OrganizationID != "" {
		out.Organization = moysklad.NewRef(base, "/entity/organization/"+s.cfg.OrganizationID, moysklad.TypeOrganization)
	}
	if s.cfg.WarehouseID != "" {
		out.Store = moysklad.NewRef(base, "/entity/store/"+s.cfg.WarehouseID, moysklad.TypeStore)
	}
	if stateID, ok := s.cfg.StatusMapping.Remote(order.Status); ok {
		out.State = s.api.StateRef(stateID)
	}
	return out
}

func orderNumber(order *model.Order) string {
	if order.Number != "" {
		return order.Number
	}
	return strconv.FormatInt(order.ID, 10)
}

// ==================== 状态同步 ====================

// UpdateOrderStatus sends only the mapped state of status. Unmapped
// statuses are a no-op and report false.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, remoteID, status string) (bool, error) {
	if s.sessions.StopPending() {
		return false, ErrStopped
	}
	stateID, ok := s.cfg.StatusMapping.Remote(status)
	if !ok {
		logger.Log.Debug("[OrderSync] status not mapped, nothing to send",
			zap.Int64("order_id", orderID), zap.String("status", status))
		return false, nil
	}
	if _, err := s.api.GetOrder(ctx, remoteID); err != nil {
		return false, fmt.Errorf("get remote order: %w", err)
	}
	if _, err := s.api.UpdateOrder(ctx, remoteID, moysklad.CustomerOrder{State: s.api.StateRef(stateID)}); err != nil {
		return false, err
	}
	if err := s.orders.AddNote(ctx, orderID, fmt.Sprintf(noteStatusSynced, status)); err != nil {
		logger.Log.Warn("[OrderSync] failed to add order note", zap.Error(err))
	}
	logger.Log.Info("[OrderSync] order status sent",
		zap.Int64("order_id", orderID), zap.String("status", status), zap.String("state_id", stateID))
	return true, nil
}

// HandleIncomingStatusChange applies remote state changes of customer
// orders to their local orders. It returns the number of orders updated.
func (s *OrderService) HandleIncomingStatusChange(ctx context.Context, events []moysklad.WebhookEvent) (int, error) {
	if !s.cfg.StatusSyncFromRemote {
		return 0, ErrSyncDisabled
	}
	reverse := s.cfg.StatusMapping.Reverse()
	updated := 0
	for _, ev := range events {
		if ev.Type() != moysklad.TypeCustomerOrder || ev.Action != webhookActionUpdate {
			continue
		}
		ok, err := s.applyRemoteStatus(ctx, ev.ID(), reverse)
		if err != nil {
			logger.Log.Error("[OrderSync] incoming status change failed",
				zap.String("remote_id", ev.ID()), zap.Error(err))
			continue
		}
		if ok {
			updated++
		}
	}
	return updated, nil
}

func (s *OrderService) applyRemoteStatus(ctx context.Context, remoteID string, reverse map[string]string) (bool, error) {
	if remoteID == "" {
		return false, nil
	}
	remote, err := s.api.GetOrder(ctx, remoteID)
	if err != nil {
		return false, err
	}
	local, err := s.orders.FindByRemoteID(ctx, remoteID)
	if err != nil {
		return false, err
	}
	if local == nil && remote.ExternalCode != "" {
		if id, convErr := strconv.ParseInt(remote.ExternalCode, 10, 64); convErr == nil {
			if local, err = s.orders.GetByID(ctx, id); err != nil {
				return false, err
			}
		}
	}
	if local == nil {
		logger.Log.Debug("[OrderSync] no local order for remote order", zap.String("remote_id", remoteID))
		return false, nil
	}

	status, ok := reverse[remote.StateID()]
	if !ok || status == local.Status {
		return false, nil
	}
	if err := s.orders.UpdateStatus(ctx, local.ID, status); err != nil {
		return false, err
	}
	if err := s.orders.AddNote(ctx, local.ID, noteStatusFromRemote); err != nil {
		logger.Log.Warn("[OrderSync] failed to add order note", zap.Error(err))
	}
	logger.Log.Info("[OrderSync] order status updated from remote",
		zap.Int64("order_id", local.ID), zap.String("from", local.Status), zap.String("to", status))
	return true, nil
}

// HandleIncomingOrder would import a remote order. Not supported.
func (s *OrderService) HandleIncomingOrder(ctx context.Context, remoteID string) error {
	return ErrNotImplemented
}

// ==================== 批量补同步 ====================

// SyncPendingOrders pushes unlinked orders older than the sync delay.
// Created counts synced orders.
func (s *OrderService) SyncPendingOrders(ctx context.Context) (*SyncResult, error) {
	if !s.cfg.Enabled {
		return nil, ErrSyncDisabled
	}
	if !s.api.IsConfigured() {
		return &SyncResult{Success: false, Message: moysklad.ErrAPINotConfigured.Error()}, nil
	}
	start := s.now()
	sess, err := s.sessions.Begin(ctx, KindOrders)
	if err != nil {
		return nil, err
	}
	defer sess.End()
	ctx = sess.Context()

	pending, err := s.orders.ListUnlinked(ctx, start.Add(-s.cfg.SyncDelay), pendingMaxAttempts, pendingBatchLimit)
	if err != nil {
		return &SyncResult{Success: false, Message: failureMessage(err), SessionID: sess.ID}, nil
	}

	var stats SyncStats
	for i, o := range pending {
		if sess.Stopped() {
			logger.Log.Info("[OrderSync] pending order sync stopped by user")
			return stoppedResult(sess, stats), nil
		}
		sess.SetProgress(i, len(pending), orderNumber(&o))
		ok, err := s.createOrUpdate(ctx, sess, o.ID)
		switch {
		case errors.Is(err, ErrStopped):
			return stoppedResult(sess, stats), nil
		case err != nil:
			stats.Failed++
		case ok:
			stats.Created++
		default:
			stats.Skipped++
		}
	}
	sess.SetProgress(len(pending), len(pending), "")

	logger.Log.Info("[OrderSync] pending orders processed",
		zap.Int("synced", stats.Created), zap.Int("failed", stats.Failed), zap.Int("skipped", stats.Skipped))
	return &SyncResult{
		Success:       true,
		Message:       fmt.Sprintf("pending orders: %d synced, %d failed, %d skipped", stats.Created, stats.Failed, stats.Skipped),
		Stats:         stats,
		ExecutionTime: s.now().Sub(start).Seconds(),
		SessionID:     sess.ID,
	}, nil
}
