// Package cart keeps the minimal cart the checkout reads from: one line per
// shopper and product with a quantity.
package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

const maxLineQuantity = 999

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart repository required")
	}
	return &Service{repo: repo}, nil
}

// Upsert sets the line quantity. Zero removes the line.
func (s *Service) Upsert(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartItem, error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shopper and product are required")
	}
	if qty < 0 || qty > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity out of range").
			WithDetails(map[string]any{"min": 0, "max": maxLineQuantity})
	}
	if qty == 0 {
		if err := s.repo.remove(ctx, userID, productID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart line")
		}
		return nil, nil
	}

	var product models.Product
	if err := s.repo.db.WithContext(ctx).Select("id", "is_active").Where("id = ?", productID).Take(&product).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	item := models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}
	if err := s.repo.upsert(ctx, &item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart line")
	}
	return &item, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shopper is required")
	}
	items, err := s.repo.list(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
	}
	return items, nil
}
