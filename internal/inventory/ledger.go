// Package inventory owns every write to products.on_hand and products.reserved.
// Each statement carries its own guard and reports whether it applied, so
// callers never read stock and then write it.
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// Ledger is the conditional-update surface used by reservations, checkout and
// order compensation.
type Ledger interface {
	Hold(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Unhold(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty, held int) (bool, error)
	Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
}

type ledger struct {
	now func() time.Time
}

// NewLedger returns the SQL-backed stock ledger.
func NewLedger() Ledger {
	return ledger{now: time.Now}
}

// Hold moves qty from available into reserved when enough is available.
func (l ledger) Hold(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if err := validate(tx, qty); err != nil {
		return false, err
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET reserved = reserved + ?,
			updated_at = ?
		WHERE id = ? AND on_hand - reserved >= ?
	`, qty, l.now().UTC(), productID, qty)
	return applied(res, "hold stock")
}

// Unhold returns qty from reserved to available.
func (l ledger) Unhold(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if err := validate(tx, qty); err != nil {
		return false, err
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET reserved = reserved - ?,
			updated_at = ?
		WHERE id = ? AND reserved >= ?
	`, qty, l.now().UTC(), productID, qty)
	return applied(res, "unhold stock")
}

// Commit consumes qty from on_hand and releases held from reserved in one
// statement. The guard is the oversell check at checkout: what remains on hand
// must still cover every other shopper's hold.
func (l ledger) Commit(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty, held int) (bool, error) {
	if err := validate(tx, qty); err != nil {
		return false, err
	}
	if held < 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "held quantity cannot be negative")
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET on_hand = on_hand - ?,
			reserved = reserved - ?,
			updated_at = ?
		WHERE id = ?
			AND on_hand >= ?
			AND reserved >= ?
			AND on_hand - ? >= reserved - ?
	`, qty, held, l.now().UTC(), productID, qty, held, qty, held)
	return applied(res, "commit stock")
}

// Restock adds qty back to on_hand after a committed order is cancelled or purged.
func (l ledger) Restock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if err := validate(tx, qty); err != nil {
		return false, err
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET on_hand = on_hand + ?,
			updated_at = ?
		WHERE id = ?
	`, qty, l.now().UTC(), productID)
	return applied(res, "restock")
}

func validate(tx *gorm.DB, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock ledger")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func applied(res *gorm.DB, op string) (bool, error) {
	ok, err := db.Applied(res)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	return ok, nil
}
