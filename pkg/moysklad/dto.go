package moysklad

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ==========================================
// DTO: remote JSON payloads of the MoySklad JSON API 1.2
// ==========================================

// Meta is the reference block every entity carries.
type Meta struct {
	Href         string `json:"href,omitempty"`
	MetadataHref string `json:"metadataHref,omitempty"`
	Type         string `json:"type,omitempty"`
	MediaType    string `json:"mediaType,omitempty"`
	DownloadHref string `json:"downloadHref,omitempty"`
	Size         int    `json:"size,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// MetaRef wraps a Meta the way references are embedded in payloads.
type MetaRef struct {
	Meta Meta `json:"meta"`
}

// NewRef builds a reference to base+path of the given type.
func NewRef(base, path, typ string) *MetaRef {
	return &MetaRef{Meta: Meta{Href: Href(base, path), Type: typ, MediaType: "application/json"}}
}

// ID returns the trailing id of the reference.
func (r *MetaRef) ID() string {
	if r == nil {
		return ""
	}
	_, id, _ := ParseRef(r.Meta.Href)
	return id
}

// List is the paginated collection envelope.
type List[T any] struct {
	Meta Meta `json:"meta"`
	Rows []T  `json:"rows"`
}

// ==================== 商品 ====================

// SalePrice is one entry of salePrices; Value is in minor currency units.
type SalePrice struct {
	Value     float64    `json:"value"`
	PriceType *PriceType `json:"priceType,omitempty"`
}

// Attribute is a custom field value. Value may be a string, number, bool or
// an object with a name (custom entity / dictionary).
type Attribute struct {
	Meta  *Meta           `json:"meta,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// StringValue renders Value as text. Objects yield their "name" field.
func (a Attribute) StringValue() string {
	raw := strings.TrimSpace(string(a.Value))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(a.Value, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(a.Value, &b); err == nil {
		if b {
			return "1"
		}
		return "0"
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(a.Value, &obj); err == nil {
		return obj.Name
	}
	return raw
}

// ProductFolder is a catalog category.
type ProductFolder struct {
	Meta          Meta     `json:"meta"`
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	PathName      string   `json:"pathName,omitempty"`
	ProductFolder *MetaRef `json:"productFolder,omitempty"`
}

// ParentID returns the remote parent folder id, or "".
func (f ProductFolder) ParentID() string {
	if f.ProductFolder == nil {
		return ""
	}
	return RefID(f.ProductFolder.Meta.Href, TypeProductFolder)
}

// ImageCollection is the images field of an expanded product.
type ImageCollection struct {
	Meta Meta    `json:"meta"`
	Rows []Image `json:"rows,omitempty"`
}

// Image is one product image.
type Image struct {
	Meta      Meta   `json:"meta"`
	Title     string `json:"title,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Size      int    `json:"size,omitempty"`
	Miniature *struct {
		Href string `json:"href"`
	} `json:"miniature,omitempty"`
	Tiny *struct {
		Href string `json:"href"`
	} `json:"tiny,omitempty"`
}

// SourceURL is the URL the image is downloaded from.
func (i Image) SourceURL() string {
	if i.Meta.DownloadHref != "" {
		return i.Meta.DownloadHref
	}
	if i.Miniature != nil {
		return i.Miniature.Href
	}
	return ""
}

// Product is a catalog item as returned by /entity/product.
type Product struct {
	Meta          Meta             `json:"meta"`
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Code          string           `json:"code,omitempty"`
	Article       string           `json:"article,omitempty"`
	ExternalCode  string           `json:"externalCode,omitempty"`
	Description   string           `json:"description,omitempty"`
	PathName      string           `json:"pathName,omitempty"`
	PaymentItem   string           `json:"paymentItemType,omitempty"`
	VariantsCount int              `json:"variantsCount,omitempty"`
	Archived      bool             `json:"archived,omitempty"`
	SalePrices    []SalePrice      `json:"salePrices,omitempty"`
	Attributes    []Attribute      `json:"attributes,omitempty"`
	ProductFolder *ProductFolder   `json:"productFolder,omitempty"`
	Images        *ImageCollection `json:"images,omitempty"`
	Raw           json.RawMessage  `json:"-"`
}

// UnmarshalJSON keeps the raw payload for the mapping snapshot.
func (p *Product) UnmarshalJSON(data []byte) error {
	type alias Product
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Product(a)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Snapshot returns the raw payload, re-encoding when it was built in code.
func (p *Product) Snapshot() json.RawMessage {
	if len(p.Raw) > 0 {
		return p.Raw
	}
	b, _ := json.Marshal(p)
	return b
}

// AttributeValue returns the text value of the named attribute.
func (p *Product) AttributeValue(name string) (string, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a.StringValue(), true
		}
	}
	return "", false
}

// FolderID returns the remote category id of the product.
func (p *Product) FolderID() string {
	if p.ProductFolder == nil {
		return ""
	}
	if p.ProductFolder.ID != "" {
		return p.ProductFolder.ID
	}
	return RefID(p.ProductFolder.Meta.Href, TypeProductFolder)
}

// Characteristic is a variant option (e.g. Size = XL).
type Characteristic struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant is a product modification.
type Variant struct {
	Meta            Meta             `json:"meta"`
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Code            string           `json:"code,omitempty"`
	ExternalCode    string           `json:"externalCode,omitempty"`
	SalePrices      []SalePrice      `json:"salePrices,omitempty"`
	Characteristics []Characteristic `json:"characteristics,omitempty"`
	Product         *MetaRef         `json:"product,omitempty"`
}

// ProductID returns the parent product id.
func (v Variant) ProductID() string {
	if v.Product == nil {
		return ""
	}
	return RefID(v.Product.Meta.Href, TypeProduct)
}

// NewProduct is the payload for creating a product.
type NewProduct struct {
	Name        string      `json:"name"`
	Code        string      `json:"code,omitempty"`
	Description string      `json:"description,omitempty"`
	SalePrices  []SalePrice `json:"salePrices,omitempty"`
}

// ==================== 库存 ====================

// StockRow is one row of /report/stock/all.
type StockRow struct {
	Meta       Meta     `json:"meta"`
	Name       string   `json:"name,omitempty"`
	Code       string   `json:"code,omitempty"`
	Stock      float64  `json:"stock"`
	Reserve    float64  `json:"reserve"`
	InTransit  float64  `json:"inTransit,omitempty"`
	Quantity   float64  `json:"quantity,omitempty"`
	Assortment *MetaRef `json:"assortment,omitempty"`
	StockStore *MetaRef `json:"stockStore,omitempty"`
}

// AssortmentHref returns the reference of the stocked item.
func (r StockRow) AssortmentHref() string {
	if r.Assortment != nil && r.Assortment.Meta.Href != "" {
		return r.Assortment.Meta.Href
	}
	return r.Meta.Href
}

// ==================== 客户与订单 ====================

// Counterparty is a remote customer.
type Counterparty struct {
	Meta          *Meta       `json:"meta,omitempty"`
	ID            string      `json:"id,omitempty"`
	Name          string      `json:"name,omitempty"`
	ExternalCode  string      `json:"externalCode,omitempty"`
	Email         string      `json:"email,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	Description   string      `json:"description,omitempty"`
	ActualAddress string      `json:"actualAddress,omitempty"`
	Group         *MetaRef    `json:"group,omitempty"`
	Attributes    []Attribute `json:"attributes,omitempty"`
}

// Position is an order line.
type Position struct {
	ID         string   `json:"id,omitempty"`
	Quantity   float64  `json:"quantity"`
	Price      float64  `json:"price"`
	Discount   float64  `json:"discount"`
	Vat        int      `json:"vat"`
	Assortment *MetaRef `json:"assortment"`
}

// CustomerOrder is the remote order document.
type CustomerOrder struct {
	Meta         *Meta       `json:"meta,omitempty"`
	ID           string      `json:"id,omitempty"`
	Name         string      `json:"name,omitempty"`
	ExternalCode string      `json:"externalCode,omitempty"`
	Moment       string      `json:"moment,omitempty"`
	Description  string      `json:"description,omitempty"`
	Agent        *MetaRef    `json:"agent,omitempty"`
	Organization *MetaRef    `json:"organization,omitempty"`
	Store        *MetaRef    `json:"store,omitempty"`
	State        *MetaRef    `json:"state,omitempty"`
	Positions    []Position  `json:"positions,omitempty"`
	Attributes   []Attribute `json:"attributes,omitempty"`
}

// orderRead decodes expanded positions ({meta, rows}) on GET.
type orderRead struct {
	CustomerOrder
	Positions json.RawMessage `json:"positions,omitempty"`
}

// StateID returns the remote status id of the order.
func (o *CustomerOrder) StateID() string {
	if o.State == nil {
		return ""
	}
	return RefID(o.State.Meta.Href, TypeState)
}

// State is an order status from customerorder metadata.
type State struct {
	Meta      Meta   `json:"meta"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     int64  `json:"color,omitempty"`
	StateType string `json:"stateType,omitempty"`
}

// ==================== 参考数据 ====================

// PriceType is a company price type.
type PriceType struct {
	Meta         *Meta  `json:"meta,omitempty"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	ExternalCode string `json:"externalCode,omitempty"`
}

// Group is a counterparty group.
type Group struct {
	Meta  Meta   `json:"meta"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Index int    `json:"index,omitempty"`
}

// Store is a warehouse.
type Store struct {
	Meta Meta   `json:"meta"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Organization is a legal entity of the account.
type Organization struct {
	Meta Meta   `json:"meta"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Webhook is a registered webhook subscription.
type Webhook struct {
	Meta       *Meta  `json:"meta,omitempty"`
	ID         string `json:"id,omitempty"`
	EntityType string `json:"entityType"`
	Action     string `json:"action"`
	URL        string `json:"url"`
	Enabled    bool   `json:"enabled"`
}

// AttributeMetadata describes a custom attribute of an entity type.
type AttributeMetadata struct {
	Meta     *Meta  `json:"meta,omitempty"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// ==================== Webhook 事件 ====================

// WebhookPayload is the body MoySklad posts to the webhook endpoint.
type WebhookPayload struct {
	Events []WebhookEvent `json:"events"`
}

// WebhookEvent is one change notification.
type WebhookEvent struct {
	Meta          Meta     `json:"meta"`
	Action        string   `json:"action"`
	EntityType    string   `json:"entityType,omitempty"`
	EntityID      string   `json:"entityId,omitempty"`
	AccountID     string   `json:"accountId,omitempty"`
	UpdatedFields []string `json:"updatedFields,omitempty"`
}

// Type returns the entity type tag of the event.
func (e WebhookEvent) Type() string {
	if e.Meta.Type != "" {
		return e.Meta.Type
	}
	if e.EntityType != "" {
		return e.EntityType
	}
	t, _, _ := ParseRef(e.Meta.Href)
	return t
}

// ID returns the entity id, parsed from meta.href when entityId is absent.
func (e WebhookEvent) ID() string {
	if e.EntityID != "" {
		return e.EntityID
	}
	_, id, _ := ParseRef(e.Meta.Href)
	return id
}
