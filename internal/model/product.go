package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ==================== 商品类型常量 ====================

const (
	ProductTypeSimple    = "simple"
	ProductTypeVariable  = "variable"
	ProductTypeVariation = "variation"
)

const (
	StockStatusInStock    = "instock"
	StockStatusOutOfStock = "outofstock"
)

const (
	ProductStatusPublish = "publish"
	ProductStatusDraft   = "draft"
)

// ==================== Product 商品 ====================

// Product is a storefront catalog item. Variations are products of type
// "variation" whose ParentID points at the variable product.
type Product struct {
	BaseModel

	ParentID int64  `gorm:"index;default:0" json:"parent_id"`
	Type     string `gorm:"size:16;index;default:simple" json:"type"`
	Status   string `gorm:"size:16;default:publish" json:"status"`

	Name        string `gorm:"size:255" json:"name"`
	SKU         string `gorm:"size:100;index" json:"sku"`
	Description string `gorm:"type:text" json:"description"`

	// 价格 (主货币单位)
	RegularPrice decimal.Decimal `gorm:"type:decimal(14,2);default:0" json:"regular_price"`

	// --- 库存 ---
	ManageStock   bool   `gorm:"default:false" json:"manage_stock"`
	StockQuantity *int   `json:"stock_quantity"`
	StockStatus   string `gorm:"size:16;default:instock" json:"stock_status"`

	CategoryID int64 `gorm:"index;default:0" json:"category_id"`

	// 变体在远端的 ID (仅 variation)
	RemoteVariantID string `gorm:"size:64;index" json:"remote_variant_id,omitempty"`

	Attributes []ProductAttribute `gorm:"foreignKey:ProductID" json:"attributes,omitempty"`
	Images     []ProductImage     `gorm:"foreignKey:ProductID" json:"images,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// IsVariable reports whether the product has variations.
func (p *Product) IsVariable() bool { return p.Type == ProductTypeVariable }

// SetStock writes an available quantity and derives the stock status.
func (p *Product) SetStock(available int) {
	if available < 0 {
		available = 0
	}
	p.ManageStock = true
	p.StockQuantity = &available
	if available > 0 {
		p.StockStatus = StockStatusInStock
	} else {
		p.StockStatus = StockStatusOutOfStock
	}
}

// ==================== 属性 ====================

// ProductAttribute is a name/value pair on a product. Variation selectors
// have ForVariations set on the parent and a single value on each variation.
type ProductAttribute struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     int64  `gorm:"index;not null" json:"product_id"`
	TaxonomyID    int64  `gorm:"default:0" json:"taxonomy_id"`
	Name          string `gorm:"size:255" json:"name"`
	Value         string `gorm:"type:text" json:"value"`
	Position      int    `gorm:"default:0" json:"position"`
	Visible       bool   `gorm:"default:true" json:"visible"`
	ForVariations bool   `gorm:"default:false" json:"for_variations"`
}

func (ProductAttribute) TableName() string {
	return "product_attributes"
}

// AttributeTaxonomy is a global attribute (e.g. "Размер") used for variations.
type AttributeTaxonomy struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"size:255" json:"name"`
	Slug      string `gorm:"size:64;uniqueIndex" json:"slug"`
	CreatedAt time.Time
}

func (AttributeTaxonomy) TableName() string {
	return "attribute_taxonomies"
}

// AttributeTerm is a value of a taxonomy.
type AttributeTerm struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TaxonomyID int64  `gorm:"uniqueIndex:idx_term_taxonomy_name;not null" json:"taxonomy_id"`
	Name       string `gorm:"size:255;uniqueIndex:idx_term_taxonomy_name" json:"name"`
}

func (AttributeTerm) TableName() string {
	return "attribute_terms"
}

// ==================== 图片 ====================

// ProductImage is an image attached to a product. SourceURL is the remote
// address it was imported from and is used to avoid downloading it twice.
type ProductImage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64     `gorm:"index;not null" json:"product_id"`
	SourceURL string    `gorm:"size:1024;index" json:"source_url"`
	URL       string    `gorm:"size:1024" json:"url"`
	Title     string    `gorm:"size:255" json:"title"`
	Position  int       `gorm:"default:0" json:"position"`
	IsPrimary bool      `gorm:"default:false" json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProductImage) TableName() string {
	return "product_images"
}
