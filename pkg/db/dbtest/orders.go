package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

// OrderSeed describes an order written straight to the tables, bypassing
// checkout. Stock is decremented for each line so restock paths balance.
type OrderSeed struct {
	UserID        uuid.UUID
	Method        enums.PaymentMethod
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
	TxnRef        string
	Lines         map[uuid.UUID]int
	CreatedAt     time.Time
}

// SeedOrder inserts the order, its details and one PAYMENT row.
func SeedOrder(t *testing.T, conn *gorm.DB, seed OrderSeed) (models.Order, models.Payment) {
	t.Helper()

	if seed.UserID == uuid.Nil {
		seed.UserID = uuid.New()
	}
	if seed.Method == "" {
		seed.Method = enums.PaymentMethodGateway
	}
	if seed.Status == "" {
		seed.Status = enums.OrderStatusPending
	}
	if seed.PaymentStatus == "" {
		seed.PaymentStatus = enums.PaymentStatusPending
		if seed.Method == enums.PaymentMethodCOD {
			seed.PaymentStatus = enums.PaymentStatusUnpaid
		}
	}
	if seed.TxnRef == "" {
		seed.TxnRef = "T" + uuid.NewString()[:12]
	}
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = time.Now().UTC()
	}

	order := models.Order{
		UserID:          seed.UserID,
		ReceiverName:    "Receiver",
		ReceiverPhone:   "0900000000",
		ReceiverAddress: "1 Market Street",
		PaymentMethod:   seed.Method,
		Status:          seed.Status,
		CreatedAt:       seed.CreatedAt,
	}
	total := decimal.Zero
	for productID, qty := range seed.Lines {
		product := ReloadProduct(t, conn, productID)
		line := product.Price.Mul(decimal.NewFromInt(int64(qty)))
		total = total.Add(line)
		order.Details = append(order.Details, models.OrderDetail{
			ProductID:   productID,
			ProductName: product.Name,
			Category:    product.Category,
			Brand:       product.Brand,
			ExpiryDate:  product.ExpiryDate,
			Quantity:    qty,
			UnitPrice:   product.Price,
			LineTotal:   line,
		})
		require.NoError(t, conn.Model(&models.Product{}).
			Where("id = ?", productID).
			Update("on_hand", gorm.Expr("on_hand - ?", qty)).Error)
	}
	order.TotalPrice = total
	require.NoError(t, conn.Create(&order).Error)

	payment := models.Payment{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Type:      enums.PaymentTypePayment,
		Method:    seed.Method,
		Status:    seed.PaymentStatus,
		Amount:    total,
		TxnRef:    seed.TxnRef,
		CreatedAt: seed.CreatedAt,
	}
	require.NoError(t, conn.Create(&payment).Error)
	return order, payment
}

// ReloadOrder fetches the order row, or fails the test.
func ReloadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()

	var order models.Order
	require.NoError(t, conn.First(&order, "id = ?", id).Error)
	return order
}

// Payments lists every payment row of an order.
func Payments(t *testing.T, conn *gorm.DB, orderID uuid.UUID, kind enums.PaymentType) []models.Payment {
	t.Helper()

	var rows []models.Payment
	require.NoError(t, conn.Where("order_id = ? AND type = ?", orderID, kind).Order("created_at ASC").Find(&rows).Error)
	return rows
}

// CountRows counts rows of model matching the optional condition.
func CountRows(t *testing.T, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()

	var count int64
	q := conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&count).Error)
	return count
}
