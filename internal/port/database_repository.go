package port

import (
	"context"
	"errors"
	"time"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a guarded update matched no row, i.e.
	// another writer advanced the state first or stock was insufficient.
	ErrConflict = errors.New("conflict")
)

type CartRepository interface {
	// UpsertLine overwrites the quantity and price snapshot of the
	// (buyer, product) line, creating it if absent.
	UpsertLine(ctx context.Context, line domain.CartLine) error

	RemoveLine(ctx context.Context, buyerID, productID string) error

	ClearCart(ctx context.Context, buyerID string) error

	// GetCartLines returns the buyer's lines ordered by add time.
	GetCartLines(ctx context.Context, buyerID string) ([]domain.CartLine, error)
}

type OrderRepository interface {
	// CreateOrders persists every order of one checkout, decrements the
	// durable inventory rows and clears the buyer's cart in a single
	// transaction. Insufficient durable stock surfaces as ErrConflict and
	// leaves no partial effect.
	CreateOrders(ctx context.Context, orders []domain.Order) error

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateOrderStatus moves an order from one status to another. The
	// update is conditional on the current status, which serializes racing
	// writers per order; ErrConflict means the order was not in `from`.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error

	// SetReceipt stores the receipt reference and moves the order to
	// PAGADO_VERIFICANDO. Valid from PENDIENTE or PAGADO_VERIFICANDO
	// (re-upload replaces the reference).
	SetReceipt(ctx context.Context, orderID, receiptRef string) error

	ListPurchases(ctx context.Context, buyerID string) ([]domain.Order, error)

	ListSales(ctx context.Context, vendorID string) ([]domain.Order, error)

	// ListStalePending returns PENDIENTE orders created before the cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
}

type InventoryRepository interface {
	GetInventory(ctx context.Context, productID string) (*domain.Inventory, error)

	// Restock adds quantity back to the durable row (cancellation path).
	Restock(ctx context.Context, productID string, quantity int) error
}
