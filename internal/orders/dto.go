package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

// ListFilters narrow the order list.
type ListFilters struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
}

// OrderSummary is one row of the order list.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	AutoDelete    bool                `json:"auto_delete"`
	RetryDeadline *time.Time          `json:"retry_deadline,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

type Receiver struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type LineView struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type PaymentView struct {
	ID            uuid.UUID           `json:"id"`
	Type          enums.PaymentType   `json:"type"`
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	Amount        decimal.Decimal     `json:"amount"`
	TxnRef        string              `json:"txn_ref"`
	ResponseCode  *string             `json:"response_code,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

type HistoryView struct {
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ActorID    *uuid.UUID        `json:"actor_id,omitempty"`
	ActorRole  enums.Role        `json:"actor_role"`
	Note       string            `json:"note"`
	CreatedAt  time.Time         `json:"created_at"`
}

// OrderView is the full order with lines, payments and status history.
type OrderView struct {
	OrderSummary
	Receiver     Receiver      `json:"receiver"`
	Note         string        `json:"note"`
	CancelReason *string       `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
	Lines        []LineView    `json:"lines"`
	Payments     []PaymentView `json:"payments"`
	History      []HistoryView `json:"history"`
}

// RetryResult carries the fresh redirect for a retried gateway payment.
type RetryResult struct {
	OrderID    uuid.UUID `json:"order_id"`
	PaymentID  uuid.UUID `json:"payment_id"`
	PaymentURL string    `json:"payment_url"`
}

func summarize(o models.Order) OrderSummary {
	return OrderSummary{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		TotalPrice:    o.TotalPrice,
		AutoDelete:    o.AutoDelete,
		RetryDeadline: o.RetryDeadline,
		PaidAt:        o.PaidAt,
		CreatedAt:     o.CreatedAt,
	}
}

func buildView(o models.Order, payments []models.Payment, history []models.OrderStatusHistory) *OrderView {
	view := &OrderView{
		OrderSummary: summarize(o),
		Receiver:     Receiver{Name: o.ReceiverName, Phone: o.ReceiverPhone, Address: o.ReceiverAddress},
		Note:         o.Note,
		CancelReason: o.CancelReason,
		CancelledAt:  o.CancelledAt,
		Lines:        make([]LineView, 0, len(o.Details)),
		Payments:     make([]PaymentView, 0, len(payments)),
		History:      make([]HistoryView, 0, len(history)),
	}
	for _, d := range o.Details {
		view.Lines = append(view.Lines, LineView{
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			Category:    d.Category,
			Brand:       d.Brand,
			ExpiryDate:  d.ExpiryDate,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice,
			LineTotal:   d.LineTotal,
		})
	}
	for _, p := range payments {
		view.Payments = append(view.Payments, PaymentView{
			ID:            p.ID,
			Type:          p.Type,
			Method:        p.Method,
			Status:        p.Status,
			Amount:        p.Amount,
			TxnRef:        p.TxnRef,
			ResponseCode:  p.ResponseCode,
			FailureReason: p.FailureReason,
			PaidAt:        p.PaidAt,
			CreatedAt:     p.CreatedAt,
		})
	}
	for _, h := range history {
		view.History = append(view.History, HistoryView{
			FromStatus: h.FromStatus,
			ToStatus:   h.ToStatus,
			ActorID:    h.ActorID,
			ActorRole:  h.ActorRole,
			Note:       h.Note,
			CreatedAt:  h.CreatedAt,
		})
	}
	return view
}
