package model

import (
	"gorm.io/gorm"

	"moysklad_sync/pkg/database"
)

// All lists every table managed by the service.
func All() []interface{} {
	return []interface{}{
		&Product{},
		&ProductAttribute{},
		&AttributeTaxonomy{},
		&AttributeTerm{},
		&ProductImage{},
		&Category{},
		&EntityMapping{},
		&Order{},
		&OrderItem{},
		&OrderNote{},
		&Customer{},
		&SyncLog{},
		&Option{},
	}
}

// Migrations are applied once, after AutoMigrate.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "seed option keys",
			Up: func(tx *gorm.DB) error {
				for _, name := range []string{OptLastProductSync, OptLastInventorySync, OptLastCategorySync} {
					if err := tx.Where(Option{Name: name}).FirstOrCreate(&Option{Name: name}).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "derive stock status from managed quantity",
			Up: func(tx *gorm.DB) error {
				if err := tx.Model(&Product{}).
					Where("manage_stock = ? AND stock_quantity > 0", true).
					Update("stock_status", StockStatusInStock).Error; err != nil {
					return err
				}
				return tx.Model(&Product{}).
					Where("manage_stock = ? AND (stock_quantity IS NULL OR stock_quantity <= 0)", true).
					Update("stock_status", StockStatusOutOfStock).Error
			},
		},
	}
}
