package model

import "time"

// Option is a runtime key/value record.
type Option struct {
	Name      string    `gorm:"primaryKey;size:128" json:"name"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Option) TableName() string {
	return "options"
}

// Option keys.
const (
	OptLastProductSync   = "last_product_sync_time"
	OptLastInventorySync = "last_inventory_sync_time"
	OptLastCategorySync  = "last_category_sync_time"
	OptPriceTypes        = "price_types"
	OptCustomerGroups    = "customer_groups"
	OptBonusAttributes   = "bonus_attributes"
	OptWebhooks          = "registered_webhooks"
)
