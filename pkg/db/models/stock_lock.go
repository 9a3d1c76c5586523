package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockLock is a time-bounded hold of quantity for one shopper and product.
type StockLock struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_stock_locks_user_product"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_locks_user_product"`
	SessionID     string    `gorm:"column:session_id;type:text;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null;index:idx_stock_locks_expires_at"`
	CooldownUntil time.Time `gorm:"column:cooldown_until;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *StockLock) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// ActiveAt reports whether the hold is still live at now.
func (l StockLock) ActiveAt(now time.Time) bool {
	return l.ExpiresAt.After(now)
}
