// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
)

// Open returns a client over a private in-memory database. A single pooled
// connection keeps concurrent transactions serialised the way sqlite needs.
func Open(t *testing.T, name string) *db.Client {
	t.Helper()

	conn, err := db.Open(sqlite.Open("file:"+name+"_"+uuid.NewString()+"?mode=memory&cache=shared"), nil)
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	return db.FromGorm(conn)
}

// SeedProduct inserts an active product with the given stock and price.
func SeedProduct(t *testing.T, conn *gorm.DB, onHand int, price int64) models.Product {
	t.Helper()

	expiry := time.Now().UTC().AddDate(1, 0, 0).Truncate(time.Second)
	product := models.Product{
		Name:       "product-" + uuid.NewString()[:8],
		Category:   "snacks",
		Brand:      "acme",
		Price:      decimal.NewFromInt(price),
		OnHand:     onHand,
		ExpiryDate: &expiry,
		IsActive:   true,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

// ReloadProduct fetches the current ledger row.
func ReloadProduct(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()

	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", id).Error)
	return product
}
