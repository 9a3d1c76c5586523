package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

// Payment holds both charges (type PAYMENT) and refunds (type REFUND, with a
// parent pointing at the charge being reversed).
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index:idx_payments_order_id;uniqueIndex:ux_payments_open_refund,where:type = 'REFUND' AND (status = 'PENDING' OR status = 'PROCESSING' OR status = 'REFUND_PENDING')"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	ParentPaymentID *uuid.UUID          `gorm:"column:parent_payment_id;type:uuid"`
	Type            enums.PaymentType   `gorm:"column:type;type:varchar(16);not null;index:idx_payments_type_status,priority:1"`
	Method          enums.PaymentMethod `gorm:"column:method;type:varchar(16);not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:varchar(16);not null;index:idx_payments_type_status,priority:2"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	TxnRef          string              `gorm:"column:txn_ref;type:varchar(64);not null;uniqueIndex:ux_payments_txn_ref"`
	ProviderTxnID   *string             `gorm:"column:provider_txn_id;type:varchar(64);uniqueIndex:ux_payments_provider_txn_id,where:provider_txn_id IS NOT NULL AND status <> 'CANCELLED'"`
	ResponseCode    *string             `gorm:"column:response_code;type:varchar(8)"`
	FailureReason   *string             `gorm:"column:failure_reason;type:text"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
