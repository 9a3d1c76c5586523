package orders

import (
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

var statusTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusPaid, enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:      {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusShipping, enums.OrderStatusCancelled},
	enums.OrderStatusShipping:  {enums.OrderStatusCompleted},
}

// CanTransition reports whether from→to appears in the order table at all.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range statusTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// adminMayMove layers the per-path rules on top of the table for the admin
// status endpoint. PAID is only reachable through the gateway callback and
// an unpaid PENDING order can only be confirmed when it is cash on delivery.
func adminMayMove(from, to enums.OrderStatus, method enums.PaymentMethod) bool {
	if !CanTransition(from, to) {
		return false
	}
	switch {
	case to == enums.OrderStatusPaid:
		return false
	case from == enums.OrderStatusPending && to == enums.OrderStatusConfirmed:
		return method == enums.PaymentMethodCOD
	}
	return true
}

// cancellableFrom lists where each role may cancel from.
func cancellableFrom(role enums.Role, from enums.OrderStatus) bool {
	switch from {
	case enums.OrderStatusPending, enums.OrderStatusPaid:
		return true
	case enums.OrderStatusConfirmed:
		return role == enums.RoleAdmin
	}
	return false
}
