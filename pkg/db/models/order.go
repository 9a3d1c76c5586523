package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

// Order is the committed purchase. Details and history are loaded explicitly.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:idx_orders_user_created,priority:1"`
	ReceiverName    string              `gorm:"column:receiver_name;type:text;not null"`
	ReceiverPhone   string              `gorm:"column:receiver_phone;type:text;not null"`
	ReceiverAddress string              `gorm:"column:receiver_address;type:text;not null"`
	Note            string              `gorm:"column:note;type:text;not null"`
	TotalPrice      decimal.Decimal     `gorm:"column:total_price;type:numeric(14,2);not null"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:varchar(16);not null"`
	Status          enums.OrderStatus   `gorm:"column:status;type:varchar(16);not null;index:idx_orders_status"`
	AutoDelete      bool                `gorm:"column:auto_delete;not null"`
	RetryDeadline   *time.Time          `gorm:"column:retry_deadline"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	CancelReason    *string             `gorm:"column:cancel_reason;type:text"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_orders_user_created,priority:2"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Details []OrderDetail `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderDetail is the immutable line snapshot taken at checkout.
type OrderDetail struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index:idx_order_details_order_id"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName string          `gorm:"column:product_name;type:text;not null"`
	Category    string          `gorm:"column:category;type:text;not null"`
	Brand       string          `gorm:"column:brand;type:text;not null"`
	ExpiryDate  *time.Time      `gorm:"column:expiry_date"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(14,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (d *OrderDetail) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// OrderStatusHistory is append-only.
type OrderStatusHistory struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index:idx_order_status_history_order_id"`
	FromStatus enums.OrderStatus `gorm:"column:from_status;type:varchar(16);not null"`
	ToStatus   enums.OrderStatus `gorm:"column:to_status;type:varchar(16);not null"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	ActorRole  enums.Role        `gorm:"column:actor_role;type:varchar(16);not null"`
	Note       string            `gorm:"column:note;type:text;not null"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
