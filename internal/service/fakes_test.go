package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moysklad_sync/internal/model"
	"moysklad_sync/pkg/moysklad"
)

const testBase = "https://api.test/api/remap/1.2"

// ==================== 测试辅助 ====================

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "连接测试数据库失败")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.All()...), "数据库迁移失败")
	return db
}

func noSleep(context.Context, time.Duration) error { return nil }

func productRef(id string) *moysklad.MetaRef {
	return moysklad.NewRef(testBase, "/entity/product/"+id, moysklad.TypeProduct)
}

func variantRef(id string) *moysklad.MetaRef {
	return moysklad.NewRef(testBase, "/entity/variant/"+id, moysklad.TypeVariant)
}

func stockRow(ref *moysklad.MetaRef, stock, reserve float64) moysklad.StockRow {
	return moysklad.StockRow{Assortment: ref, Stock: stock, Reserve: reserve}
}

type orderUpdate struct {
	ID    string
	Order moysklad.CustomerOrder
}

// ==================== fakeRemote ====================

// fakeRemote implements every remote API slice the services depend on.
type fakeRemote struct {
	mu sync.Mutex

	unconfigured bool

	// catalog
	products  []moysklad.Product
	failLimit int
	listCalls int
	variants  map[string][]moysklad.Variant
	folders   []moysklad.ProductFolder
	onVariant func(productID string)

	// stock
	stockRows  []moysklad.StockRow
	stockErr   error
	stockCalls [][]string

	// counterparties and orders
	counterparty   *moysklad.Counterparty
	cpRequests     []moysklad.Counterparty
	cpUpdates      []orderCounterpartyUpdate
	createdOrders  []moysklad.CustomerOrder
	updatedOrders  []orderUpdate
	remoteOrders   map[string]*moysklad.CustomerOrder
	simpleErr      error
	simpleCreates  int
	plainCreates   []moysklad.NewProduct
	nextProductID  string
	createOrderErr error

	// reference data
	priceTypes []moysklad.PriceType
	groups     []moysklad.Group
	stores     []moysklad.Store
	orgs       []moysklad.Organization
	states     []moysklad.State
	refCalls   map[string]int
	connErr    error

	// webhooks
	webhooks    []moysklad.Webhook
	registerErr error
	registered  []string

	// metadata
	metadataDenied bool
	attributes     map[string]string
}

type orderCounterpartyUpdate struct {
	ID string
	CP moysklad.Counterparty
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		variants:      map[string][]moysklad.Variant{},
		remoteOrders:  map[string]*moysklad.CustomerOrder{},
		refCalls:      map[string]int{},
		attributes:    map[string]string{},
		nextProductID: "auto-1",
	}
}

func (f *fakeRemote) IsConfigured() bool { return !f.unconfigured }
func (f *fakeRemote) BaseURL() string    { return testBase }

func (f *fakeRemote) ListProducts(_ context.Context, limit, offset int) (*moysklad.ProductPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failLimit != 0 && limit == f.failLimit {
		return nil, errors.New("page fetch failed")
	}
	page := &moysklad.ProductPage{Meta: moysklad.Meta{Size: len(f.products), Limit: limit, Offset: offset}}
	for i := offset; i < len(f.products) && i < offset+limit; i++ {
		page.Rows = append(page.Rows, f.products[i])
	}
	return page, nil
}

func (f *fakeRemote) GetProduct(_ context.Context, id string) (*moysklad.Product, error) {
	for i := range f.products {
		if f.products[i].ID == id {
			p := f.products[i]
			return &p, nil
		}
	}
	return nil, &moysklad.APIError{StatusCode: 404, Message: "not found"}
}

func (f *fakeRemote) ListVariants(_ context.Context, productID string) ([]moysklad.Variant, error) {
	if f.onVariant != nil {
		f.onVariant(productID)
	}
	return f.variants[productID], nil
}

func (f *fakeRemote) GetVariant(_ context.Context, id string) (*moysklad.Variant, error) {
	for _, list := range f.variants {
		for i := range list {
			if list[i].ID == id {
				v := list[i]
				return &v, nil
			}
		}
	}
	return nil, &moysklad.APIError{StatusCode: 404, Message: "not found"}
}

func (f *fakeRemote) ListProductFolders(context.Context) ([]moysklad.ProductFolder, error) {
	return f.folders, nil
}

func (f *fakeRemote) ListImages(context.Context, string) ([]moysklad.Image, error) {
	return nil, nil
}

func (f *fakeRemote) Download(context.Context, string) ([]byte, string, error) {
	return []byte("img"), "image/png", nil
}

func (f *fakeRemote) StockBatch(_ context.Context, ids []string, _ string) ([]moysklad.StockRow, error) {
	f.mu.Lock()
	f.stockCalls = append(f.stockCalls, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.stockErr != nil {
		return nil, f.stockErr
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []moysklad.StockRow
	for _, r := range f.stockRows {
		if _, id, ok := moysklad.ParseRef(r.AssortmentHref()); ok && want[id] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRemote) ProductStock(ctx context.Context, id, warehouseID string) ([]moysklad.StockRow, error) {
	return f.StockBatch(ctx, []string{id}, warehouseID)
}

func (f *fakeRemote) FindOrCreateCounterparty(_ context.Context, cp moysklad.Counterparty) (*moysklad.Counterparty, error) {
	f.cpRequests = append(f.cpRequests, cp)
	if f.counterparty != nil {
		return f.counterparty, nil
	}
	return &moysklad.Counterparty{
		ID:   "cp-1",
		Meta: &moysklad.Meta{Href: testBase + "/entity/counterparty/cp-1", Type: moysklad.TypeCounterparty},
		Name: cp.Name,
	}, nil
}

func (f *fakeRemote) GetCounterparty(_ context.Context, id string) (*moysklad.Counterparty, error) {
	return &moysklad.Counterparty{ID: id}, nil
}

func (f *fakeRemote) UpdateCounterparty(_ context.Context, id string, cp moysklad.Counterparty) (*moysklad.Counterparty, error) {
	f.cpUpdates = append(f.cpUpdates, orderCounterpartyUpdate{ID: id, CP: cp})
	cp.ID = id
	return &cp, nil
}

func (f *fakeRemote) CreateOrder(_ context.Context, order moysklad.CustomerOrder) (*moysklad.CustomerOrder, error) {
	if f.createOrderErr != nil {
		return nil, f.createOrderErr
	}
	f.createdOrders = append(f.createdOrders, order)
	order.ID = "ro-" + order.ExternalCode
	return &order, nil
}

func (f *fakeRemote) UpdateOrder(_ context.Context, id string, order moysklad.CustomerOrder) (*moysklad.CustomerOrder, error) {
	f.updatedOrders = append(f.updatedOrders, orderUpdate{ID: id, Order: order})
	order.ID = id
	return &order, nil
}

func (f *fakeRemote) GetOrder(_ context.Context, id string) (*moysklad.CustomerOrder, error) {
	if o, ok := f.remoteOrders[id]; ok {
		return o, nil
	}
	return &moysklad.CustomerOrder{ID: id}, nil
}

func (f *fakeRemote) CreateSimpleProduct(_ context.Context, name string, priceMinor int64, sku, description string) (*moysklad.Product, error) {
	f.simpleCreates++
	if f.simpleErr != nil {
		return nil, f.simpleErr
	}
	return &moysklad.Product{ID: f.nextProductID, Name: name, Code: sku,
		SalePrices: []moysklad.SalePrice{{Value: float64(priceMinor)}}}, nil
}

func (f *fakeRemote) CreateProduct(_ context.Context, payload moysklad.NewProduct) (*moysklad.Product, error) {
	f.plainCreates = append(f.plainCreates, payload)
	return &moysklad.Product{ID: f.nextProductID, Name: payload.Name, Code: payload.Code}, nil
}

func (f *fakeRemote) StateRef(stateID string) *moysklad.MetaRef {
	return moysklad.NewRef(testBase, "/entity/customerorder/metadata/states/"+stateID, "state")
}

func (f *fakeRemote) PriceTypes(context.Context) ([]moysklad.PriceType, error) {
	f.refCalls["pricetypes"]++
	return f.priceTypes, nil
}

func (f *fakeRemote) CustomerGroups(context.Context) []moysklad.Group {
	f.refCalls["groups"]++
	return f.groups
}

func (f *fakeRemote) Stores(context.Context) ([]moysklad.Store, error) {
	f.refCalls["stores"]++
	return f.stores, nil
}

func (f *fakeRemote) Organizations(context.Context) ([]moysklad.Organization, error) {
	f.refCalls["orgs"]++
	return f.orgs, nil
}

func (f *fakeRemote) OrderStates(context.Context) ([]moysklad.State, error) {
	f.refCalls["states"]++
	return f.states, nil
}

func (f *fakeRemote) TestConnection(context.Context) error { return f.connErr }

func (f *fakeRemote) ListWebhooks(context.Context) ([]moysklad.Webhook, error) {
	return f.webhooks, nil
}

func (f *fakeRemote) RegisterWebhook(_ context.Context, entityType, action, callbackURL string) (*moysklad.Webhook, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, entityType)
	return &moysklad.Webhook{ID: "wh-" + entityType, EntityType: entityType, Action: action, URL: callbackURL}, nil
}

func (f *fakeRemote) DeleteWebhook(context.Context, string) error { return nil }

func (f *fakeRemote) EnsureAttribute(_ context.Context, entityType, name, typ string) (*moysklad.AttributeMetadata, error) {
	id, ok := f.attributes[entityType+"/"+name]
	if !ok {
		id = "attr-" + string(rune('a'+len(f.attributes)))
		f.attributes[entityType+"/"+name] = id
	}
	return &moysklad.AttributeMetadata{ID: id, Name: name, Type: typ}, nil
}

func (f *fakeRemote) AttributeRef(entityType, attributeID string) *moysklad.Meta {
	return &moysklad.Meta{
		Href: testBase + "/entity/" + entityType + "/metadata/attributes/" + attributeID,
		Type: "attributemetadata",
	}
}

func (f *fakeRemote) CanReadOrderMetadata(context.Context) (bool, error) {
	return !f.metadataDenied, nil
}

var (
	_ CatalogAPI   = (*fakeRemote)(nil)
	_ ImageAPI     = (*fakeRemote)(nil)
	_ StockAPI     = (*fakeRemote)(nil)
	_ OrderAPI     = (*fakeRemote)(nil)
	_ CustomerAPI  = (*fakeRemote)(nil)
	_ WebhookAPI   = (*fakeRemote)(nil)
	_ MetadataAPI  = (*fakeRemote)(nil)
	_ ReferenceAPI = (*fakeRemote)(nil)
)
