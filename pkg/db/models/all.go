package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Product{},
		&StockLock{},
		&CartItem{},
		&Order{},
		&OrderDetail{},
		&OrderStatusHistory{},
		&Payment{},
		&OutboxEvent{},
		&Notification{},
	}
}
