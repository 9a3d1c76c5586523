// Package history appends rows to the order status log. Rows are never
// updated; the purge path removes them together with the order.
package history

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
)

// Actor is whoever drove a transition.
type Actor struct {
	ID   *uuid.UUID
	Role enums.Role
}

func Customer(id uuid.UUID) Actor { return Actor{ID: &id, Role: enums.RoleCustomer} }
func Admin(id uuid.UUID) Actor    { return Actor{ID: &id, Role: enums.RoleAdmin} }

var (
	Gateway = Actor{Role: enums.RoleGateway}
	System  = Actor{Role: enums.RoleSystem}
)

// Ref renders the actor for outbox envelopes.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.ID, Role: string(a.Role)}
}

// Append writes one transition row inside tx.
func Append(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor Actor, note string) error {
	row := models.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Note:       note,
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
	}
	return nil
}

// List returns an order's transitions oldest first.
func List(ctx context.Context, conn *gorm.DB, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	err := conn.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order history")
	}
	return rows, nil
}
