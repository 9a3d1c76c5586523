package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/catalog"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/payloads"
)

// BuildDetails snapshots each cart line at the current catalog price and
// returns the details with the order total. Prices never come from the client.
func BuildDetails(items []models.CartItem, snapshots map[uuid.UUID]catalog.Snapshot) ([]models.OrderDetail, decimal.Decimal, error) {
	details := make([]models.OrderDetail, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		snap, ok := snapshots[item.ProductID]
		if !ok || !snap.IsActive {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer available").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		lineTotal := snap.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(lineTotal)
		details = append(details, models.OrderDetail{
			ProductID:   item.ProductID,
			ProductName: snap.Name,
			Category:    snap.Category,
			Brand:       snap.Brand,
			ExpiryDate:  snap.ExpiryDate,
			Quantity:    item.Quantity,
			UnitPrice:   snap.Price,
			LineTotal:   lineTotal,
		})
	}
	return details, total, nil
}

// EventLines renders details for the order.created payload.
func EventLines(details []models.OrderDetail) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, 0, len(details))
	for _, d := range details {
		lines = append(lines, payloads.OrderLine{
			ProductID: d.ProductID,
			Quantity:  d.Quantity,
			UnitPrice: d.UnitPrice,
		})
	}
	return lines
}
