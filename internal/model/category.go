package model

// Category is a storefront taxonomy node. RemoteID is the remote folder id.
type Category struct {
	BaseModel
	Name        string `gorm:"size:255" json:"name"`
	Slug        string `gorm:"size:255;index" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	ParentID    int64  `gorm:"index;default:0" json:"parent_id"`
	RemoteID    string `gorm:"size:64;index" json:"remote_id"`
}

func (Category) TableName() string {
	return "categories"
}
