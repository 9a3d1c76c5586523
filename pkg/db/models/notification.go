package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification stores the in-app copy of a message pushed to a shopper.
type Notification struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index:idx_notifications_user_id" json:"user_id"`
	Title     string          `gorm:"column:title;type:text;not null" json:"title"`
	Body      string          `gorm:"column:body;type:text;not null" json:"body"`
	Data      json.RawMessage `gorm:"column:data;type:jsonb" json:"data,omitempty"`
	ReadAt    *time.Time      `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
