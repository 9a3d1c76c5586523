package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the stock ledger row. on_hand and reserved change only through
// the conditional statements in internal/inventory.
type Product struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name       string          `gorm:"column:name;type:text;not null"`
	Category   string          `gorm:"column:category;type:text;not null"`
	Brand      string          `gorm:"column:brand;type:text;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null"`
	OnHand     int             `gorm:"column:on_hand;not null;check:chk_products_on_hand,on_hand >= 0"`
	Reserved   int             `gorm:"column:reserved;not null;check:chk_products_reserved,reserved >= 0 AND reserved <= on_hand"`
	ExpiryDate *time.Time      `gorm:"column:expiry_date"`
	IsActive   bool            `gorm:"column:is_active;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Available is the quantity that can still be held.
func (p Product) Available() int {
	return p.OnHand - p.Reserved
}
