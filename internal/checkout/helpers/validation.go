package helpers

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// Receiver is the delivery contact captured on the order.
type Receiver struct {
	Name    string
	Phone   string
	Address string
}

// ValidateReceiver trims the receiver fields and requires all of them.
func ValidateReceiver(r Receiver) (Receiver, error) {
	out := Receiver{
		Name:    strings.TrimSpace(r.Name),
		Phone:   strings.TrimSpace(r.Phone),
		Address: strings.TrimSpace(r.Address),
	}
	missing := []string{}
	if out.Name == "" {
		missing = append(missing, "name")
	}
	if out.Phone == "" {
		missing = append(missing, "phone")
	}
	if out.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return out, pkgerrors.New(pkgerrors.CodeValidation, "receiver "+strings.Join(missing, ", ")+" required").
			WithDetails(map[string]any{"missing": missing})
	}
	return out, nil
}

// NormalizeSelection drops nil and repeated product ids, keeping order.
func NormalizeSelection(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
