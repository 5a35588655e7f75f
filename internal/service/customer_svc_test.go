package service

import (
	"context"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

type customerFixture struct {
	remote    *fakeRemote
	customers repository.CustomerRepository
	mappings  repository.MappingRepository
	options   repository.OptionRepository
	svc       *CustomerService
}

func newCustomerFixture(t *testing.T, cfg config.CustomerConfig) *customerFixture {
	db := setupTestDB(t)
	f := &customerFixture{
		remote:    newFakeRemote(),
		customers: repository.NewCustomerRepository(db),
		mappings:  repository.NewMappingRepository(db),
		options:   repository.NewOptionRepository(db),
	}
	f.svc = NewCustomerService(f.remote, f.customers, f.mappings, f.options, cfg)
	return f
}

func (f *customerFixture) customer(t *testing.T, c *model.Customer) *model.Customer {
	if c.Role == "" {
		c.Role = model.RoleCustomer
	}
	require.NoError(t, f.customers.Create(context.Background(), c))
	return c
}

func TestSyncCustomer_FindOrCreateStoresRemoteID(t *testing.T) {
	f := newCustomerFixture(t, config.CustomerConfig{Enabled: true, GroupID: "grp-1"})
	c := f.customer(t, &model.Customer{FirstName: "Anna", LastName: "Smirnova", Email: "anna@example.com", City: "Kazan"})

	res, err := f.svc.OnCustomerRegistered(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "cp-1", res.RemoteCustomerID)

	require.Len(t, f.remote.cpRequests, 1)
	sent := f.remote.cpRequests[0]
	assert.Equal(t, "Anna Smirnova", sent.Name)
	assert.Equal(t, strconv.FormatInt(c.ID, 10), sent.ExternalCode)
	assert.Equal(t, "Kazan", sent.ActualAddress)
	require.NotNil(t, sent.Group)
	assert.Equal(t, testBase+"/entity/group/grp-1", sent.Group.Meta.Href)

	saved, err := f.customers.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "cp-1", saved.RemoteCustomerID)
}

func TestSyncCustomer_LinkedCustomerIsUpdated(t *testing.T) {
	f := newCustomerFixture(t, config.CustomerConfig{Enabled: true})
	c := f.customer(t, &model.Customer{Email: "b@example.com", RemoteCustomerID: "cp-9"})

	res, err := f.svc.OnCustomerUpdated(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, f.remote.cpRequests)
	require.Len(t, f.remote.cpUpdates, 1)
	assert.Equal(t, "cp-9", f.remote.cpUpdates[0].ID)
	assert.Equal(t, "b@example.com", f.remote.cpUpdates[0].CP.Name, "email stands in for a missing name")
}

func TestSyncCustomer_SkipsNonCustomersAndDisabled(t *testing.T) {
	f := newCustomerFixture(t, config.CustomerConfig{Enabled: true})
	admin := f.customer(t, &model.Customer{Role: "administrator", Email: "root@example.com"})

	res, err := f.svc.SyncCustomer(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	f = newCustomerFixture(t, config.CustomerConfig{Enabled: false})
	c := f.customer(t, &model.Customer{Email: "c@example.com"})
	res, err = f.svc.OnCustomerRegistered(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, f.remote.cpRequests)
}

func TestSyncPriceTypes_StoresReferenceData(t *testing.T) {
	f := newCustomerFixture(t, config.CustomerConfig{PriceTypeSync: true})
	f.remote.priceTypes = []moysklad.PriceType{{ID: "pt-retail", Name: "Retail"}, {ID: "pt-vip", Name: "VIP"}}
	f.remote.groups = []moysklad.Group{{ID: "g-1", Name: "Main"}}

	res, err := f.svc.SyncPriceTypes(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.PriceTypes, 2)

	var stored []moysklad.PriceType
	found, err := f.options.GetJSON(context.Background(), model.OptPriceTypes, &stored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, f.remote.priceTypes, stored)
}

func TestSyncPriceTypes_Guards(t *testing.T) {
	f := newCustomerFixture(t, config.CustomerConfig{PriceTypeSync: false})
	_, err := f.svc.SyncPriceTypes(context.Background())
	assert.ErrorIs(t, err, ErrSyncDisabled)

	f = newCustomerFixture(t, config.CustomerConfig{PriceTypeSync: true})
	f.remote.unconfigured = true
	_, err = f.svc.SyncPriceTypes(context.Background())
	assert.ErrorIs(t, err, moysklad.ErrAPINotConfigured)

	f = newCustomerFixture(t, config.CustomerConfig{PriceTypeSync: true})
	res, err := f.svc.SyncPriceTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no price types found", res.Message)
}

func TestCustomerPrice(t *testing.T) {
	f := newCustomerFixture(t, config.CustomerConfig{PriceTypeSync: true})
	ctx := context.Background()
	vip := f.customer(t, &model.Customer{Email: "vip@example.com", RemoteCustomerID: "cp-1", PriceTypeID: "pt-vip"})
	plain := f.customer(t, &model.Customer{Email: "p@example.com", RemoteCustomerID: "cp-2"})

	snapshot := (&moysklad.Product{ID: "rp-1", SalePrices: []moysklad.SalePrice{
		{Value: 10000, PriceType: &moysklad.PriceType{ID: "pt-retail"}},
		{Value: 7550, PriceType: &moysklad.PriceType{ID: "pt-vip"}},
	}}).Snapshot()
	require.NoError(t, f.mappings.Upsert(ctx, 5, "rp-1", snapshot))

	fallback := decimal.NewFromInt(100)
	assert.True(t, decimal.RequireFromString("75.5").Equal(f.svc.CustomerPrice(ctx, vip.ID, 5, fallback)))
	assert.True(t, fallback.Equal(f.svc.CustomerPrice(ctx, plain.ID, 5, fallback)), "no price type")
	assert.True(t, fallback.Equal(f.svc.CustomerPrice(ctx, vip.ID, 6, fallback)), "product not mapped")
}
