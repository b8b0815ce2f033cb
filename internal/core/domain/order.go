package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDIENTE"
	OrderStatusVerifying OrderStatus = "PAGADO_VERIFICANDO"
	OrderStatusPaid      OrderStatus = "PAGADO"
	OrderStatusCancelled OrderStatus = "CANCELADO"
)

// CanTransitionTo reports whether the lifecycle allows moving to next.
// PAGADO and CANCELADO are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusVerifying || next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusVerifying:
		return next == OrderStatusPaid
	default:
		return false
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCard || m == PaymentMethodTransfer
}

// Order is one vendor's share of a checkout. A checkout spanning three
// vendors yields three orders that advance independently.
type Order struct {
	ID         string
	CheckoutID string
	BuyerID    string
	VendorID   string
	Total      decimal.Decimal
	Method     PaymentMethod
	Status     OrderStatus
	ReceiptRef string
	Lines      []OrderLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderLine is immutable once its order exists.
type OrderLine struct {
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LinesTotal sums quantity x unit price over all lines. It must equal
// Total; order creation rejects an order where it does not.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
