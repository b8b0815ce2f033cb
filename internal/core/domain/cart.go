package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one (buyer, product) entry. Quantity updates are absolute
// overwrites, not deltas.
type CartLine struct {
	BuyerID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	AddedAt   time.Time
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the buyer's current lines plus their computed total.
type Cart struct {
	BuyerID string
	Lines   []CartLine
	Total   decimal.Decimal
}

func NewCart(buyerID string, lines []CartLine) Cart {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return Cart{BuyerID: buyerID, Lines: lines, Total: total}
}
