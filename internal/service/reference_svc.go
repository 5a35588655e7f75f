package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
	"moysklad_sync/pkg/moysklad"
	"moysklad_sync/pkg/utils"
)

// DefaultReferenceTTL is how long reference lists are served from memory.
const DefaultReferenceTTL = 10 * time.Minute

const referenceKey = "all"

// ReferenceService serves the remote lookup lists used by settings screens.
type ReferenceService struct {
	api ReferenceAPI

	stores     *utils.TTLCache[[]moysklad.Store]
	orgs       *utils.TTLCache[[]moysklad.Organization]
	states     *utils.TTLCache[[]moysklad.State]
	priceTypes *utils.TTLCache[[]moysklad.PriceType]
	groups     *utils.TTLCache[[]moysklad.Group]
}

func NewReferenceService(api ReferenceAPI, ttl time.Duration) *ReferenceService {
	if ttl <= 0 {
		ttl = DefaultReferenceTTL
	}
	return &ReferenceService{
		api:        api,
		stores:     utils.NewTTLCache[[]moysklad.Store](ttl),
		orgs:       utils.NewTTLCache[[]moysklad.Organization](ttl),
		states:     utils.NewTTLCache[[]moysklad.State](ttl),
		priceTypes: utils.NewTTLCache[[]moysklad.PriceType](ttl),
		groups:     utils.NewTTLCache[[]moysklad.Group](ttl),
	}
}

func (s *ReferenceService) Stores(ctx context.Context) ([]moysklad.Store, error) {
	return s.stores.GetOrLoad(referenceKey, func() ([]moysklad.Store, error) {
		return s.api.Stores(ctx)
	})
}

func (s *ReferenceService) Organizations(ctx context.Context) ([]moysklad.Organization, error) {
	return s.orgs.GetOrLoad(referenceKey, func() ([]moysklad.Organization, error) {
		return s.api.Organizations(ctx)
	})
}

func (s *ReferenceService) OrderStates(ctx context.Context) ([]moysklad.State, error) {
	return s.states.GetOrLoad(referenceKey, func() ([]moysklad.State, error) {
		return s.api.OrderStates(ctx)
	})
}

func (s *ReferenceService) PriceTypes(ctx context.Context) ([]moysklad.PriceType, error) {
	return s.priceTypes.GetOrLoad(referenceKey, func() ([]moysklad.PriceType, error) {
		return s.api.PriceTypes(ctx)
	})
}

// CustomerGroups never fails; an empty list is not cached so a later call
// retries.
func (s *ReferenceService) CustomerGroups(ctx context.Context) []moysklad.Group {
	if groups, ok := s.groups.Get(referenceKey); ok {
		return groups
	}
	groups := s.api.CustomerGroups(ctx)
	if len(groups) > 0 {
		s.groups.Set(referenceKey, groups)
	}
	return groups
}

// Invalidate drops every cached list.
func (s *ReferenceService) Invalidate() {
	s.stores.Clear()
	s.orgs.Clear()
	s.states.Clear()
	s.priceTypes.Clear()
	s.groups.Clear()
}

// TestConnection probes the credentials with a minimal request. Cached
// lists are dropped on success since the account may have changed.
func (s *ReferenceService) TestConnection(ctx context.Context) error {
	if err := s.api.TestConnection(ctx); err != nil {
		logger.Log.Warn("[Reference] connection test failed", zap.Error(err))
		return err
	}
	s.Invalidate()
	logger.Log.Info("[Reference] connection test succeeded")
	return nil
}
