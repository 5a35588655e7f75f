package service

import (
	"context"

	"moysklad_sync/pkg/moysklad"
)

// The interfaces below are the slices of *moysklad.Client each service
// depends on.

type CatalogAPI interface {
	IsConfigured() bool
	ListProducts(ctx context.Context, limit, offset int) (*moysklad.ProductPage, error)
	GetProduct(ctx context.Context, id string) (*moysklad.Product, error)
	ListVariants(ctx context.Context, productID string) ([]moysklad.Variant, error)
	GetVariant(ctx context.Context, id string) (*moysklad.Variant, error)
	ListProductFolders(ctx context.Context) ([]moysklad.ProductFolder, error)
}

type ImageAPI interface {
	ListImages(ctx context.Context, collectionHref string) ([]moysklad.Image, error)
	Download(ctx context.Context, href string) ([]byte, string, error)
}

type StockAPI interface {
	IsConfigured() bool
	StockBatch(ctx context.Context, ids []string, warehouseID string) ([]moysklad.StockRow, error)
	ProductStock(ctx context.Context, id, warehouseID string) ([]moysklad.StockRow, error)
}

type OrderAPI interface {
	IsConfigured() bool
	FindOrCreateCounterparty(ctx context.Context, cp moysklad.Counterparty) (*moysklad.Counterparty, error)
	CreateOrder(ctx context.Context, order moysklad.CustomerOrder) (*moysklad.CustomerOrder, error)
	UpdateOrder(ctx context.Context, id string, order moysklad.CustomerOrder) (*moysklad.CustomerOrder, error)
	GetOrder(ctx context.Context, id string) (*moysklad.CustomerOrder, error)
	CreateSimpleProduct(ctx context.Context, name string, priceMinor int64, sku, description string) (*moysklad.Product, error)
	CreateProduct(ctx context.Context, payload moysklad.NewProduct) (*moysklad.Product, error)
	StateRef(stateID string) *moysklad.MetaRef
	BaseURL() string
}

type CustomerAPI interface {
	IsConfigured() bool
	FindOrCreateCounterparty(ctx context.Context, cp moysklad.Counterparty) (*moysklad.Counterparty, error)
	GetCounterparty(ctx context.Context, id string) (*moysklad.Counterparty, error)
	UpdateCounterparty(ctx context.Context, id string, cp moysklad.Counterparty) (*moysklad.Counterparty, error)
	PriceTypes(ctx context.Context) ([]moysklad.PriceType, error)
	CustomerGroups(ctx context.Context) []moysklad.Group
	BaseURL() string
}

type WebhookAPI interface {
	ListWebhooks(ctx context.Context) ([]moysklad.Webhook, error)
	RegisterWebhook(ctx context.Context, entityType, action, callbackURL string) (*moysklad.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
}

type MetadataAPI interface {
	IsConfigured() bool
	EnsureAttribute(ctx context.Context, entityType, name, typ string) (*moysklad.AttributeMetadata, error)
	AttributeRef(entityType, attributeID string) *moysklad.Meta
	CanReadOrderMetadata(ctx context.Context) (bool, error)
	UpdateCounterparty(ctx context.Context, id string, cp moysklad.Counterparty) (*moysklad.Counterparty, error)
}

type ReferenceAPI interface {
	Stores(ctx context.Context) ([]moysklad.Store, error)
	Organizations(ctx context.Context) ([]moysklad.Organization, error)
	PriceTypes(ctx context.Context) ([]moysklad.PriceType, error)
	OrderStates(ctx context.Context) ([]moysklad.State, error)
	CustomerGroups(ctx context.Context) []moysklad.Group
	TestConnection(ctx context.Context) error
}

var (
	_ CatalogAPI   = (*moysklad.Client)(nil)
	_ ImageAPI     = (*moysklad.Client)(nil)
	_ StockAPI     = (*moysklad.Client)(nil)
	_ OrderAPI     = (*moysklad.Client)(nil)
	_ CustomerAPI  = (*moysklad.Client)(nil)
	_ WebhookAPI   = (*moysklad.Client)(nil)
	_ MetadataAPI  = (*moysklad.Client)(nil)
	_ ReferenceAPI = (*moysklad.Client)(nil)
)
