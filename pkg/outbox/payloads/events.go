package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent is emitted once checkout commits.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	Lines         []OrderLine         `json:"lines"`
}

// OrderPaidEvent follows a successful gateway callback.
type OrderPaidEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	TxnRef        string          `json:"txn_ref"`
	ProviderTxnID string          `json:"provider_txn_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

// OrderPaymentFailedEvent follows a non-success gateway callback.
type OrderPaymentFailedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	ResponseCode  string    `json:"response_code"`
	RetryDeadline time.Time `json:"retry_deadline"`
}

type OrderPaymentRetriedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	TxnRef    string    `json:"txn_ref"`
}

type OrderCancelledEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	UserID          uuid.UUID         `json:"user_id"`
	FromStatus      enums.OrderStatus `json:"from_status"`
	Reason          string            `json:"reason,omitempty"`
	RefundRequested bool              `json:"refund_requested"`
	CancelledAt     time.Time         `json:"cancelled_at"`
}

type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Note       string            `json:"note,omitempty"`
}

// OrderExpiredEvent is emitted when the sweeper purges an unpaid order.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID   `json:"order_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Rule      string      `json:"rule"`
	Restocked []OrderLine `json:"restocked"`
	ExpiredAt time.Time   `json:"expired_at"`
}

// RefundEvent carries both refund.completed and refund.failed.
type RefundEvent struct {
	RefundID      uuid.UUID           `json:"refund_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Status        enums.PaymentStatus `json:"status"`
	ResponseCode  string              `json:"response_code,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}
