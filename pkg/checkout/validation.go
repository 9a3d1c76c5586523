package checkout

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

const (
	HoldMissing = "missing"
	HoldExpired = "expired"
	HoldShort   = "short"
)

// HoldCheck pairs a cart line with the shopper's stock lock, if any.
type HoldCheck struct {
	ProductID uuid.UUID
	Requested int
	Held      int
	Present   bool
	Live      bool
}

// HoldViolation is returned to callers for each line whose hold cannot cover it.
type HoldViolation struct {
	ProductID    uuid.UUID `json:"product_id"`
	Reason       string    `json:"reason"`
	RequestedQty int       `json:"requested_qty"`
	HeldQty      int       `json:"held_qty"`
}

// ValidateHolds ensures every line is covered by a live hold of at least its
// quantity. Lines are never re-reserved here; the shopper has to reserve again.
func ValidateHolds(items []HoldCheck) error {
	var violations []HoldViolation
	for _, item := range items {
		reason := ""
		switch {
		case !item.Present:
			reason = HoldMissing
		case !item.Live:
			reason = HoldExpired
		case item.Held < item.Requested:
			reason = HoldShort
		default:
			continue
		}
		violations = append(violations, HoldViolation{
			ProductID:    item.ProductID,
			Reason:       reason,
			RequestedQty: item.Requested,
			HeldQty:      item.Held,
		})
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeHoldExpired, fmt.Sprintf("stock hold missing or expired for %d item(s)", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
