package cartdto

import (
	"time"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
)

// UpsertItemRequest sets one cart line. A zero quantity removes it.
type UpsertItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=0,max=999"`
}

type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Cart struct {
	Items []CartItem `json:"items"`
}

func NewCartItem(item models.CartItem) CartItem {
	return CartItem{ProductID: item.ProductID, Quantity: item.Quantity, UpdatedAt: item.UpdatedAt}
}

func NewCart(items []models.CartItem) Cart {
	out := Cart{Items: make([]CartItem, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, NewCartItem(item))
	}
	return out
}
