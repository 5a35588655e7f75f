package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

// Remote attribute names created by RegisterAttributes.
const (
	bonusUsedName    = "Использовано бонусов"
	bonusEarnedName  = "Начислено бонусов"
	bonusBalanceName = "Баланс бонусов"

	bonusCouponPrefix = "bonus_"
)

// BonusAttributes are the remote attribute ids bonus values are written to.
type BonusAttributes struct {
	UsedID        string `json:"used_bonus_id"`
	EarnedID      string `json:"earned_bonus_id"`
	BalanceID     string `json:"balance_bonus_id"`
	RequiresAdmin bool   `json:"requires_admin,omitempty"`
}

// BonusService carries loyalty points into remote orders and customers.
type BonusService struct {
	api       MetadataAPI
	customers repository.CustomerRepository
	options   repository.OptionRepository
	cfg       config.BonusConfig
}

func NewBonusService(api MetadataAPI, customers repository.CustomerRepository, options repository.OptionRepository, cfg config.BonusConfig) *BonusService {
	return &BonusService{api: api, customers: customers, options: options, cfg: cfg}
}

// Enabled is false for a nil service.
func (s *BonusService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// Attributes returns the registered attribute ids, falling back to the
// configured ones for any id not registered yet.
func (s *BonusService) Attributes(ctx context.Context) BonusAttributes {
	var stored BonusAttributes
	if _, err := s.options.GetJSON(ctx, model.OptBonusAttributes, &stored); err != nil {
		logger.Log.Warn("[Bonus] failed to read registered attributes", zap.Error(err))
	}
	out := BonusAttributes{UsedID: s.cfg.UsedAttributeID, EarnedID: s.cfg.EarnedAttributeID, BalanceID: s.cfg.BalanceAttributeID}
	if stored.UsedID != "" {
		out.UsedID = stored.UsedID
	}
	if stored.EarnedID != "" {
		out.EarnedID = stored.EarnedID
	}
	if stored.BalanceID != "" {
		out.BalanceID = stored.BalanceID
	}
	return out
}

// UsedPoints is the points spent on the order. Without an explicit value the
// amounts of bonus_<n> coupons are summed.
func UsedPoints(order *model.Order) int {
	if order.BonusPointsUsed > 0 {
		return order.BonusPointsUsed
	}
	total := 0
	for _, code := range order.Coupons() {
		if !strings.HasPrefix(code, bonusCouponPrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(code, bonusCouponPrefix)); err == nil && n > 0 {
			total += n
		}
	}
	return total
}

// DecorateOrder adds the used and earned points to the payload, both as
// attributes and as a description prefix.
func (s *BonusService) DecorateOrder(ctx context.Context, order *model.Order, payload *moysklad.CustomerOrder) {
	if !s.Enabled() {
		return
	}
	used, earned := UsedPoints(order), order.BonusPointsEarned
	if used <= 0 && earned <= 0 {
		return
	}
	ids := s.Attributes(ctx)

	var prefix string
	if used > 0 && ids.UsedID != "" {
		payload.Attributes = append(payload.Attributes, moysklad.Attribute{
			Meta:  s.api.AttributeRef(moysklad.TypeCustomerOrder, ids.UsedID),
			Value: intValue(used),
		})
		prefix += fmt.Sprintf("Использовано бонусов: %d. ", used)
	}
	if earned > 0 && ids.EarnedID != "" {
		payload.Attributes = append(payload.Attributes, moysklad.Attribute{
			Meta:  s.api.AttributeRef(moysklad.TypeCustomerOrder, ids.EarnedID),
			Value: intValue(earned),
		})
		prefix += fmt.Sprintf("Начислено бонусов: %d. ", earned)
	}
	if prefix != "" {
		payload.Description = strings.TrimSpace(prefix + payload.Description)
		logger.Log.Info("[Bonus] bonus points added to order",
			zap.Int64("order_id", order.ID), zap.Int("used", used), zap.Int("earned", earned))
	}
}

// UpdateCustomerBalance stores the balance locally and pushes it to the
// linked counterparty. Unlinked customers are only updated locally.
func (s *BonusService) UpdateCustomerBalance(ctx context.Context, customerID int64, points int) error {
	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return fmt.Errorf("customer %d not found", customerID)
	}
	if err := s.customers.SetBonusBalance(ctx, customerID, points); err != nil {
		return err
	}
	if !s.Enabled() {
		return nil
	}
	if customer.RemoteCustomerID == "" {
		logger.Log.Debug("[Bonus] customer not linked, balance kept locally", zap.Int64("customer_id", customerID))
		return nil
	}

	ids := s.Attributes(ctx)
	_, err = s.api.UpdateCounterparty(ctx, customer.RemoteCustomerID, moysklad.Counterparty{
		Attributes: []moysklad.Attribute{{
			Meta:  s.api.AttributeRef(moysklad.TypeCounterparty, ids.BalanceID),
			Value: intValue(points),
		}},
	})
	if err != nil {
		logger.Log.Error("[Bonus] balance update failed",
			zap.Int64("customer_id", customerID), zap.String("remote_id", customer.RemoteCustomerID), zap.Error(err))
		return err
	}
	logger.Log.Info("[Bonus] customer balance updated",
		zap.Int64("customer_id", customerID), zap.Int("points", points))
	return nil
}

// RegisterAttributes finds or creates the three bonus attributes. Without
// admin rights on the remote account the configured ids are returned with
// RequiresAdmin set.
func (s *BonusService) RegisterAttributes(ctx context.Context) (*BonusAttributes, error) {
	if !s.api.IsConfigured() {
		return nil, moysklad.ErrAPINotConfigured
	}
	fallback := s.Attributes(ctx)
	fallback.RequiresAdmin = true

	ok, err := s.api.CanReadOrderMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Log.Warn("[Bonus] admin rights required to create attributes, using configured ids")
		return &fallback, nil
	}

	var out BonusAttributes
	specs := []struct {
		entity, name string
		id           *string
	}{
		{moysklad.TypeCustomerOrder, bonusUsedName, &out.UsedID},
		{moysklad.TypeCustomerOrder, bonusEarnedName, &out.EarnedID},
		{moysklad.TypeCounterparty, bonusBalanceName, &out.BalanceID},
	}

	for _, sp := range specs {
		attr, err := s.api.EnsureAttribute(ctx, sp.entity, sp.name, "long")
		if err != nil {
			if moysklad.IsAccessDenied(err) {
				logger.Log.Warn("[Bonus] attribute creation denied, using configured ids", zap.Error(err))
				return &fallback, nil
			}
			return nil, fmt.Errorf("attribute %q: %w", sp.name, err)
		}
		*sp.id = attr.ID
	}

	if err := s.options.SetJSON(ctx, model.OptBonusAttributes, out); err != nil {
		return nil, err
	}
	logger.Log.Info("[Bonus] attributes registered",
		zap.String("used", out.UsedID), zap.String("earned", out.EarnedID), zap.String("balance", out.BalanceID))
	return &out, nil
}

func intValue(n int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(n))
}
