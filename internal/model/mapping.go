package model

import (
	"time"

	"gorm.io/datatypes"
)

// EntityMapping links a local catalog item to a remote one and keeps the
// last fetched remote payload.
type EntityMapping struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	LocalID        int64          `gorm:"index;not null" json:"local_id"`
	RemoteID       string         `gorm:"size:64;uniqueIndex;not null" json:"remote_id"`
	RemoteSnapshot datatypes.JSON `json:"remote_snapshot"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`
}

func (EntityMapping) TableName() string {
	return "entity_mappings"
}
