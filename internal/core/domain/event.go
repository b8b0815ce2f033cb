package domain

import "time"

// OrderEvent notifies the counterpart of a state change. Delivery is
// best-effort and never blocks the transition that produced it.
type OrderEvent struct {
	OrderID    string      `json:"order_id"`
	FromUserID string      `json:"from_user_id"`
	ToUserID   string      `json:"to_user_id"`
	Status     OrderStatus `json:"status"`
	OccurredAt time.Time   `json:"occurred_at"`
}
