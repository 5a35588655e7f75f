package model

import "strings"

const RoleCustomer = "customer"

// Customer is a storefront account.
type Customer struct {
	BaseModel
	Role        string `gorm:"size:32;index;default:customer" json:"role"`
	Email       string `gorm:"size:255;index" json:"email"`
	DisplayName string `gorm:"size:255" json:"display_name"`

	FirstName string `gorm:"size:128" json:"first_name"`
	LastName  string `gorm:"size:128" json:"last_name"`
	Phone     string `gorm:"size:64" json:"phone"`
	Address1  string `gorm:"size:255" json:"address_1"`
	Address2  string `gorm:"size:255" json:"address_2"`
	City      string `gorm:"size:128" json:"city"`
	State     string `gorm:"size:128" json:"state"`
	Postcode  string `gorm:"size:32" json:"postcode"`
	Country   string `gorm:"size:8" json:"country"`

	RemoteCustomerID string `gorm:"size:64;index" json:"remote_customer_id"`
	// 个人价格类型
	PriceTypeID  string `gorm:"size:64" json:"price_type_id"`
	BonusBalance int    `gorm:"default:0" json:"bonus_balance"`
}

func (Customer) TableName() string {
	return "customers"
}

// FullName returns "first last", falling back to DisplayName.
func (c *Customer) FullName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.DisplayName
	}
	return name
}

// Address joins the non-empty address parts.
func (c *Customer) Address() string {
	var parts []string
	for _, p := range []string{c.Address1, c.Address2, c.City, c.State, c.Postcode, c.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
