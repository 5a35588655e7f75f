package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ==================== 订单状态常量 ====================

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusOnHold     = "on-hold"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
	OrderStatusFailed     = "failed"
)

// ==================== Order 订单主表 ====================

// Order is a storefront order. RemoteOrderID is set once the order has been
// created remotely and never changes afterwards.
type Order struct {
	BaseModel
	Number     string `gorm:"size:32;index" json:"number"`
	Status     string `gorm:"size:32;index;default:pending" json:"status"`
	CustomerID int64  `gorm:"index;default:0" json:"customer_id"`

	// 账单信息
	BillingFirstName string `gorm:"size:128" json:"billing_first_name"`
	BillingLastName  string `gorm:"size:128" json:"billing_last_name"`
	BillingEmail     string `gorm:"size:255" json:"billing_email"`
	BillingPhone     string `gorm:"size:64" json:"billing_phone"`
	BillingAddress1  string `gorm:"size:255" json:"billing_address_1"`
	BillingAddress2  string `gorm:"size:255" json:"billing_address_2"`
	BillingCity      string `gorm:"size:128" json:"billing_city"`
	BillingState     string `gorm:"size:128" json:"billing_state"`
	BillingPostcode  string `gorm:"size:32" json:"billing_postcode"`
	BillingCountry   string `gorm:"size:8" json:"billing_country"`

	Total        decimal.Decimal `gorm:"type:decimal(14,2);default:0" json:"total"`
	CustomerNote string          `gorm:"type:text" json:"customer_note"`
	// comma separated coupon codes
	CouponCodes string `gorm:"size:1024" json:"coupon_codes"`

	// 积分
	BonusPointsUsed   int `gorm:"default:0" json:"bonus_points_used"`
	BonusPointsEarned int `gorm:"default:0" json:"bonus_points_earned"`

	// --- 同步状态 ---
	RemoteOrderID string     `gorm:"size:64;index" json:"remote_order_id"`
	SyncAttempts  int        `gorm:"default:0" json:"sync_attempts"`
	SyncError     string     `gorm:"size:1024" json:"sync_error"`
	SyncedAt      *time.Time `json:"synced_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Notes []OrderNote `gorm:"foreignKey:OrderID" json:"notes,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// IsLinked reports whether the order already exists remotely.
func (o *Order) IsLinked() bool { return o.RemoteOrderID != "" }

// Coupons splits CouponCodes.
func (o *Order) Coupons() []string {
	var out []string
	for _, c := range strings.Split(o.CouponCodes, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// BillingAddress joins the non-empty address parts.
func (o *Order) BillingAddress() string {
	var parts []string
	for _, p := range []string{o.BillingAddress1, o.BillingAddress2, o.BillingCity, o.BillingState, o.BillingPostcode, o.BillingCountry} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// OrderItem is an order line.
type OrderItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64           `gorm:"index;not null" json:"order_id"`
	ProductID   int64           `gorm:"index" json:"product_id"`
	VariationID int64           `gorm:"default:0" json:"variation_id"`
	Name        string          `gorm:"size:255" json:"name"`
	Quantity    int             `gorm:"default:1" json:"quantity"`
	Total       decimal.Decimal `gorm:"type:decimal(14,2);default:0" json:"total"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// UnitPrice is the line total divided by the quantity.
func (i *OrderItem) UnitPrice() decimal.Decimal {
	if i.Quantity <= 0 {
		return i.Total
	}
	return i.Total.Div(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderNote is a free-text annotation on an order.
type OrderNote struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64     `gorm:"index;not null" json:"order_id"`
	Note      string    `gorm:"type:text" json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderNote) TableName() string {
	return "order_notes"
}
