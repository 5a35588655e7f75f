package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

// CustomerSyncResult is the outcome of syncing one account.
type CustomerSyncResult struct {
	Success          bool   `json:"success"`
	Skipped          bool   `json:"skipped,omitempty"`
	RemoteCustomerID string `json:"remote_customer_id,omitempty"`
	Message          string `json:"message,omitempty"`
}

// PriceTypeSyncResult reports the reference data cached by SyncPriceTypes.
type PriceTypeSyncResult struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message"`
	PriceTypes     []moysklad.PriceType `json:"price_types,omitempty"`
	CustomerGroups []moysklad.Group     `json:"customer_groups,omitempty"`
}

// CustomerService keeps storefront customers linked to remote counterparties.
type CustomerService struct {
	api       CustomerAPI
	customers repository.CustomerRepository
	mappings  repository.MappingRepository
	options   repository.OptionRepository
	cfg       config.CustomerConfig
}

func NewCustomerService(api CustomerAPI, customers repository.CustomerRepository, mappings repository.MappingRepository,
	options repository.OptionRepository, cfg config.CustomerConfig) *CustomerService {
	return &CustomerService{api: api, customers: customers, mappings: mappings, options: options, cfg: cfg}
}

func (s *CustomerService) OnCustomerRegistered(ctx context.Context, userID int64) (*CustomerSyncResult, error) {
	return s.onChange(ctx, userID)
}

func (s *CustomerService) OnCustomerUpdated(ctx context.Context, userID int64) (*CustomerSyncResult, error) {
	return s.onChange(ctx, userID)
}

func (s *CustomerService) onChange(ctx context.Context, userID int64) (*CustomerSyncResult, error) {
	if !s.cfg.Enabled || !s.api.IsConfigured() {
		return &CustomerSyncResult{Skipped: true, Message: "customer sync disabled"}, nil
	}
	return s.SyncCustomer(ctx, userID)
}

// SyncCustomer pushes one account. Linked customers are updated in place,
// others go through find-or-create and the remote id is stored.
func (s *CustomerService) SyncCustomer(ctx context.Context, userID int64) (*CustomerSyncResult, error) {
	customer, err := s.customers.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, fmt.Errorf("customer %d not found", userID)
	}
	if customer.Role != model.RoleCustomer {
		return &CustomerSyncResult{Skipped: true, Message: "only customer accounts are synchronized"}, nil
	}

	logger.Log.Info("[CustomerSync] syncing customer", zap.Int64("customer_id", userID))
	payload := s.counterparty(customer)

	var remote *moysklad.Counterparty
	if customer.RemoteCustomerID != "" {
		remote, err = s.api.UpdateCounterparty(ctx, customer.RemoteCustomerID, payload)
	} else {
		remote, err = s.api.FindOrCreateCounterparty(ctx, payload)
	}
	if err != nil {
		logger.Log.Error("[CustomerSync] customer sync failed", zap.Int64("customer_id", userID), zap.Error(err))
		return &CustomerSyncResult{Success: false, Message: failureMessage(err)}, err
	}
	if remote == nil || remote.ID == "" {
		err := errors.New("invalid response from remote API: counterparty id missing")
		return &CustomerSyncResult{Success: false, Message: err.Error()}, err
	}

	if remote.ID != customer.RemoteCustomerID {
		if err := s.customers.SetRemoteID(ctx, userID, remote.ID); err != nil {
			return nil, err
		}
	}
	logger.Log.Info("[CustomerSync] customer synchronized",
		zap.Int64("customer_id", userID), zap.String("remote_id", remote.ID))
	return &CustomerSyncResult{Success: true, RemoteCustomerID: remote.ID}, nil
}

func (s *CustomerService) counterparty(c *model.Customer) moysklad.Counterparty {
	cp := moysklad.Counterparty{
		Name:          c.FullName(),
		ExternalCode:  strconv.FormatInt(c.ID, 10),
		Email:         c.Email,
		Phone:         c.Phone,
		Description:   fmt.Sprintf("Storefront customer ID: %d", c.ID),
		ActualAddress: c.Address(),
	}
	if cp.Name == "" {
		cp.Name = c.Email
	}
	if s.cfg.GroupID != "" {
		cp.Group = moysklad.NewRef(s.api.BaseURL(), "/entity/group/"+s.cfg.GroupID, moysklad.TypeGroup)
	}
	return cp
}

// ==================== 价格类型 ====================

// SyncPriceTypes caches the remote price types and customer groups in
// options.
func (s *CustomerService) SyncPriceTypes(ctx context.Context) (*PriceTypeSyncResult, error) {
	if !s.api.IsConfigured() {
		logger.Log.Error("[CustomerSync] price type sync failed: API not configured")
		return nil, moysklad.ErrAPINotConfigured
	}
	if !s.cfg.PriceTypeSync {
		return nil, ErrSyncDisabled
	}

	priceTypes, err := s.api.PriceTypes(ctx)
	if err != nil {
		return &PriceTypeSyncResult{Success: false, Message: failureMessage(err)}, nil
	}
	if len(priceTypes) == 0 {
		return &PriceTypeSyncResult{Success: true, Message: "no price types found"}, nil
	}
	groups := s.api.CustomerGroups(ctx)
	if len(groups) == 0 {
		return &PriceTypeSyncResult{Success: true, Message: "no customer groups found"}, nil
	}

	if err := s.options.SetJSON(ctx, model.OptPriceTypes, priceTypes); err != nil {
		return nil, err
	}
	if err := s.options.SetJSON(ctx, model.OptCustomerGroups, groups); err != nil {
		return nil, err
	}
	logger.Log.Info("[CustomerSync] price types synchronized",
		zap.Int("price_types", len(priceTypes)), zap.Int("customer_groups", len(groups)))
	return &PriceTypeSyncResult{
		Success:        true,
		Message:        fmt.Sprintf("synchronized %d price types and %d customer groups", len(priceTypes), len(groups)),
		PriceTypes:     priceTypes,
		CustomerGroups: groups,
	}, nil
}

// CustomerPrice returns the price of the customer's price type from the
// product's last remote snapshot, or fallback when there is none.
func (s *CustomerService) CustomerPrice(ctx context.Context, customerID, productID int64, fallback decimal.Decimal) decimal.Decimal {
	if !s.cfg.PriceTypeSync {
		return fallback
	}
	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil || customer == nil || customer.RemoteCustomerID == "" || customer.PriceTypeID == "" {
		return fallback
	}
	m, err := s.mappings.FindByLocalID(ctx, productID)
	if err != nil || m == nil || len(m.RemoteSnapshot) == 0 {
		return fallback
	}

	var snapshot struct {
		SalePrices []moysklad.SalePrice `json:"salePrices"`
	}
	if err := json.Unmarshal(m.RemoteSnapshot, &snapshot); err != nil {
		logger.Log.Debug("[CustomerSync] unreadable product snapshot", zap.Int64("product_id", productID), zap.Error(err))
		return fallback
	}
	for _, sp := range snapshot.SalePrices {
		if sp.PriceType != nil && sp.PriceType.ID == customer.PriceTypeID {
			return FromMinor(sp.Value)
		}
	}
	return fallback
}
