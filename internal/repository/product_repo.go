package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"moysklad_sync/internal/model"
)

// ==================== 接口定义 ====================

// ProductRepository 商品仓储接口
type ProductRepository interface {
	// 基础 CRUD
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	Update(ctx context.Context, product *model.Product) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error)

	// 查找
	FindBySKU(ctx context.Context, sku string) (*model.Product, error)

	// 变体
	ListVariations(ctx context.Context, parentID int64) ([]model.Product, error)
	FindVariationByRemoteID(ctx context.Context, remoteVariantID string) (*model.Product, error)

	// 库存
	UpdateStock(ctx context.Context, id int64, available int) error

	// 属性
	ReplaceAttributes(ctx context.Context, productID int64, attrs []model.ProductAttribute) error
	ListAttributes(ctx context.Context, productID int64) ([]model.ProductAttribute, error)
	EnsureTaxonomy(ctx context.Context, name string) (*model.AttributeTaxonomy, error)
	EnsureTerm(ctx context.Context, taxonomyID int64, name string) (*model.AttributeTerm, error)

	// 图片
	ListImages(ctx context.Context, productID int64) ([]model.ProductImage, error)
	FindImageBySource(ctx context.Context, productID int64, sourceURL string) (*model.ProductImage, error)
	CreateImage(ctx context.Context, image *model.ProductImage) error
	UpdateImage(ctx context.Context, image *model.ProductImage) error

	// 事务
	WithTx(tx *gorm.DB) ProductRepository
	Transaction(ctx context.Context, fn func(txRepo ProductRepository) error) error
}

// ==================== 过滤条件 ====================

// ProductFilter 商品过滤条件
type ProductFilter struct {
	Type     string
	ParentID *int64
	Keyword  string
	Page     int
	PageSize int
}

// ==================== 仓储实现 ====================

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepo{db: tx}
}

func (r *productRepo) Transaction(ctx context.Context, fn func(txRepo ProductRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Omit("Attributes", "Images").Create(product).Error
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Preload("Attributes").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) Update(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Omit("Attributes", "Images").Save(product).Error
}

func (r *productRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *productRepo) List(ctx context.Context, filter ProductFilter) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Product{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.Keyword != "" {
		kw := "%" + strings.ToLower(filter.Keyword) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", kw, kw)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	offset := (filter.Page - 1) * filter.PageSize
	err := query.
		Order("updated_at DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&products).Error

	return products, total, err
}

// FindBySKU returns the top-level product with the given SKU, or nil.
func (r *productRepo) FindBySKU(ctx context.Context, sku string) (*model.Product, error) {
	if sku == "" {
		return nil, nil
	}
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("sku = ? AND parent_id = 0", sku).
		Order("id ASC").
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) ListVariations(ctx context.Context, parentID int64) ([]model.Product, error) {
	var variations []model.Product
	err := r.db.WithContext(ctx).
		Preload("Attributes").
		Where("parent_id = ? AND type = ?", parentID, model.ProductTypeVariation).
		Order("id ASC").
		Find(&variations).Error
	return variations, err
}

func (r *productRepo) FindVariationByRemoteID(ctx context.Context, remoteVariantID string) (*model.Product, error) {
	if remoteVariantID == "" {
		return nil, nil
	}
	var variation model.Product
	err := r.db.WithContext(ctx).
		Where("remote_variant_id = ? AND type = ?", remoteVariantID, model.ProductTypeVariation).
		First(&variation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &variation, nil
}

// UpdateStock writes the available quantity and the derived stock status.
func (r *productRepo) UpdateStock(ctx context.Context, id int64, available int) error {
	var p model.Product
	p.SetStock(available)
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"manage_stock":   true,
			"stock_quantity": *p.StockQuantity,
			"stock_status":   p.StockStatus,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ==================== 属性 ====================

func (r *productRepo) ReplaceAttributes(ctx context.Context, productID int64, attrs []model.ProductAttribute) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).Delete(&model.ProductAttribute{}).Error; err != nil {
			return err
		}
		if len(attrs) == 0 {
			return nil
		}
		for i := range attrs {
			attrs[i].ID = 0
			attrs[i].ProductID = productID
			attrs[i].Position = i
		}
		return tx.Create(&attrs).Error
	})
}

func (r *productRepo) ListAttributes(ctx context.Context, productID int64) ([]model.ProductAttribute, error) {
	var attrs []model.ProductAttribute
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("position ASC").
		Find(&attrs).Error
	return attrs, err
}

// EnsureTaxonomy returns the taxonomy for name, creating it when missing.
func (r *productRepo) EnsureTaxonomy(ctx context.Context, name string) (*model.AttributeTaxonomy, error) {
	tax := model.AttributeTaxonomy{Name: name, Slug: Slugify(name)}
	err := r.db.WithContext(ctx).
		Where(model.AttributeTaxonomy{Slug: tax.Slug}).
		Attrs(model.AttributeTaxonomy{Name: name}).
		FirstOrCreate(&tax).Error
	if err != nil {
		return nil, err
	}
	return &tax, nil
}

// EnsureTerm returns the term of the taxonomy, creating it when missing.
func (r *productRepo) EnsureTerm(ctx context.Context, taxonomyID int64, name string) (*model.AttributeTerm, error) {
	term := model.AttributeTerm{TaxonomyID: taxonomyID, Name: name}
	err := r.db.WithContext(ctx).
		Where(model.AttributeTerm{TaxonomyID: taxonomyID, Name: name}).
		FirstOrCreate(&term).Error
	if err != nil {
		return nil, err
	}
	return &term, nil
}

// ==================== 图片 ====================

func (r *productRepo) ListImages(ctx context.Context, productID int64) ([]model.ProductImage, error) {
	var images []model.ProductImage
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("position ASC").
		Find(&images).Error
	return images, err
}

func (r *productRepo) FindImageBySource(ctx context.Context, productID int64, sourceURL string) (*model.ProductImage, error) {
	var image model.ProductImage
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND source_url = ?", productID, sourceURL).
		First(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *productRepo) CreateImage(ctx context.Context, image *model.ProductImage) error {
	return r.db.WithContext(ctx).Create(image).Error
}

func (r *productRepo) UpdateImage(ctx context.Context, image *model.ProductImage) error {
	return r.db.WithContext(ctx).Save(image).Error
}
