package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
)

// Repository persists cart lines. Transaction-scoped helpers take the tx.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) upsert(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{"quantity": item.Quantity, "updated_at": time.Now().UTC()}),
	}).Create(item).Error
}

func (r *Repository) remove(ctx context.Context, userID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartItem{}).Error
}

func (r *Repository) list(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// ListSelected loads the shopper's lines for productIDs inside tx.
func ListSelected(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) ([]models.CartItem, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var items []models.CartItem
	err := tx.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// DeleteSelected removes the consumed lines inside tx.
func DeleteSelected(ctx context.Context, tx *gorm.DB, userID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
