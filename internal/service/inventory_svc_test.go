package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moysklad_sync/internal/config"
	"moysklad_sync/internal/model"
	"moysklad_sync/internal/repository"
	"moysklad_sync/pkg/moysklad"
)

type inventoryFixture struct {
	remote   *fakeRemote
	products repository.ProductRepository
	mappings repository.MappingRepository
	sessions *SessionManager
	svc      *InventoryService
}

func newInventoryFixture(t *testing.T, batch int) *inventoryFixture {
	db := setupTestDB(t)
	f := &inventoryFixture{
		remote:   newFakeRemote(),
		products: repository.NewProductRepository(db),
		mappings: repository.NewMappingRepository(db),
		sessions: NewSessionManager(),
	}
	f.svc = NewInventoryService(f.remote, f.products, f.mappings, repository.NewOptionRepository(db), f.sessions,
		config.InventoryConfig{Enabled: true, BatchSize: batch})
	return f
}

func (f *inventoryFixture) mappedProduct(t *testing.T, remoteID string) *model.Product {
	p := &model.Product{Name: remoteID, Type: model.ProductTypeSimple}
	require.NoError(t, f.products.Create(context.Background(), p))
	require.NoError(t, f.mappings.Upsert(context.Background(), p.ID, remoteID, nil))
	return p
}

func (f *inventoryFixture) reload(t *testing.T, id int64) *model.Product {
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestSyncInventory_MissingRowsLeaveProductsUntouched(t *testing.T) {
	f := newInventoryFixture(t, 50)
	a := f.mappedProduct(t, "r-a")
	b := f.mappedProduct(t, "r-b")
	c := f.mappedProduct(t, "r-c")
	f.remote.stockRows = []moysklad.StockRow{
		stockRow(productRef("r-a"), 10, 3),
		stockRow(productRef("r-b"), 2, 5),
	}

	result, err := f.svc.SyncInventory(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Stats.Updated)

	pa := f.reload(t, a.ID)
	require.NotNil(t, pa.StockQuantity)
	assert.Equal(t, 7, *pa.StockQuantity)
	assert.Equal(t, model.StockStatusInStock, pa.StockStatus)

	pb := f.reload(t, b.ID)
	require.NotNil(t, pb.StockQuantity)
	assert.Equal(t, 0, *pb.StockQuantity, "reserve above stock clamps to zero")
	assert.Equal(t, model.StockStatusOutOfStock, pb.StockStatus)

	pc := f.reload(t, c.ID)
	assert.Nil(t, pc.StockQuantity)
	assert.False(t, pc.ManageStock)
}

func TestSyncInventory_Batches(t *testing.T) {
	f := newInventoryFixture(t, 2)
	for _, id := range []string{"r-1", "r-2", "r-3"} {
		f.mappedProduct(t, id)
	}

	_, err := f.svc.SyncInventory(context.Background())
	require.NoError(t, err)
	require.Len(t, f.remote.stockCalls, 2)
	assert.Len(t, f.remote.stockCalls[0], 2)
	assert.Len(t, f.remote.stockCalls[1], 1)
}

func TestSyncInventory_BatchErrorCountsFailures(t *testing.T) {
	f := newInventoryFixture(t, 50)
	f.mappedProduct(t, "r-1")
	f.mappedProduct(t, "r-2")
	f.remote.stockErr = errors.New("boom")

	result, err := f.svc.SyncInventory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.Failed)
	assert.Equal(t, 0, result.Stats.Updated)
}

func TestSyncInventory_VariationsMatchedByVariantKey(t *testing.T) {
	f := newInventoryFixture(t, 50)
	ctx := context.Background()
	parent := f.mappedProduct(t, "r-shirt")
	require.NoError(t, f.products.UpdateFields(ctx, parent.ID, map[string]interface{}{"type": model.ProductTypeVariable}))
	red := &model.Product{ParentID: parent.ID, Type: model.ProductTypeVariation, RemoteVariantID: "v-red"}
	blue := &model.Product{ParentID: parent.ID, Type: model.ProductTypeVariation, RemoteVariantID: "v-blue"}
	require.NoError(t, f.products.Create(ctx, red))
	require.NoError(t, f.products.Create(ctx, blue))

	f.remote.stockRows = []moysklad.StockRow{
		stockRow(variantRef("v-red"), 4, 1),
		stockRow(variantRef("v-blue"), 0, 0),
	}

	result, err := f.svc.SyncInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Updated)
	assert.ElementsMatch(t, []string{"r-shirt", "v-red", "v-blue"}, f.remote.stockCalls[0])

	assert.Equal(t, 3, *f.reload(t, red.ID).StockQuantity)
	assert.Equal(t, 0, *f.reload(t, blue.ID).StockQuantity)
	assert.Equal(t, model.StockStatusInStock, f.reload(t, parent.ID).StockStatus)
}

func TestSyncInventory_StopBeforeStart(t *testing.T) {
	f := newInventoryFixture(t, 50)
	f.mappedProduct(t, "r-1")
	f.sessions.Stop()

	result, err := f.svc.SyncInventory(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Stopped)
	assert.Empty(t, f.remote.stockCalls)
	assert.False(t, f.sessions.StopPending())
}

func TestStockMap(t *testing.T) {
	rows := []moysklad.StockRow{
		stockRow(productRef("p"), 3.7, 0.2),
		stockRow(productRef("p"), 2, 1),
		stockRow(variantRef("v"), 1, 0),
		stockRow(moysklad.NewRef(testBase, "/entity/service/s", "service"), 9, 0),
	}
	m := StockMap(rows)
	require.Len(t, m, 2)
	assert.InDelta(t, 5.7, m["p"].OnHand, 1e-9)
	assert.Equal(t, 4, m["p"].Available())
	assert.Equal(t, 1, m["variant_v"].Available())
}

func TestStockLevel_AvailableNeverNegative(t *testing.T) {
	assert.Equal(t, 0, stockLevel{OnHand: 1, Reserved: 5}.Available())
	assert.Equal(t, 0, stockLevel{OnHand: -3}.Available())
	assert.Equal(t, 2, stockLevel{OnHand: 2.9, Reserved: 0.9}.Available())
}
