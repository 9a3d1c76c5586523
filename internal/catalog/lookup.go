// Package catalog is the read side of the product catalog that the order
// engine trusts for prices. Catalog CRUD lives elsewhere.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// Snapshot is the product state copied into an order detail.
type Snapshot struct {
	ID         uuid.UUID
	Name       string
	Category   string
	Brand      string
	Price      decimal.Decimal
	ExpiryDate *time.Time
	IsActive   bool
}

// PriceLookup reads current product snapshots inside the caller's transaction.
type PriceLookup interface {
	FindByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]Snapshot, error)
}

type lookup struct{}

func NewPriceLookup() PriceLookup {
	return lookup{}
}

func (lookup) FindByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]Snapshot, error) {
	out := make(map[uuid.UUID]Snapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for price lookup")
	}
	var products []models.Product
	if err := tx.WithContext(ctx).
		Select("id", "name", "category", "brand", "price", "expiry_date", "is_active").
		Where("id IN ?", ids).
		Find(&products).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product snapshots")
	}
	for _, p := range products {
		out[p.ID] = Snapshot{
			ID:         p.ID,
			Name:       p.Name,
			Category:   p.Category,
			Brand:      p.Brand,
			Price:      p.Price,
			ExpiryDate: p.ExpiryDate,
			IsActive:   p.IsActive,
		}
	}
	return out, nil
}
