package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/port"
)

// MemoryAdapter implements every storage port in memory behind one mutex.
// It backs the tests and makes the server runnable without MySQL/Redis.
type MemoryAdapter struct {
	mu        sync.Mutex
	carts     map[string][]domain.CartLine
	orders    map[string]*domain.Order
	inventory map[string]*domain.Inventory
	products  map[string]domain.Product
	vendors   map[string]domain.Vendor
	stock     map[string]int
	idem      map[string]bool
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		carts:     make(map[string][]domain.CartLine),
		orders:    make(map[string]*domain.Order),
		inventory: make(map[string]*domain.Inventory),
		products:  make(map[string]domain.Product),
		vendors:   make(map[string]domain.Vendor),
		stock:     make(map[string]int),
		idem:      make(map[string]bool),
	}
}

// SeedVendor registers a vendor for catalog lookups.
func (m *MemoryAdapter) SeedVendor(vendor domain.Vendor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendors[vendor.ID] = vendor
}

// SeedProduct registers a product and sets both the durable and cached
// stock to available.
func (m *MemoryAdapter) SeedProduct(product domain.Product, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	m.inventory[product.ID] = &domain.Inventory{
		ProductID: product.ID,
		Available: available,
		UpdatedAt: time.Now(),
	}
	m.stock[product.ID] = available
}

// CachedStock exposes the cache-side quantity for assertions.
func (m *MemoryAdapter) CachedStock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}

// --- CacheRepository ---

func (m *MemoryAdapter) DecrementStock(_ context.Context, productID string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stock[productID] < quantity {
		return false, nil
	}
	m.stock[productID] -= quantity
	return true, nil
}

func (m *MemoryAdapter) IncrementStock(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] += quantity
	return nil
}

func (m *MemoryAdapter) SetIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idem[key] {
		return false, nil
	}
	m.idem[key] = true
	return true, nil
}

// --- CartRepository ---

func (m *MemoryAdapter) UpsertLine(_ context.Context, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[line.BuyerID]
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			lines[i].Quantity = line.Quantity
			lines[i].UnitPrice = line.UnitPrice
			return nil
		}
	}
	m.carts[line.BuyerID] = append(lines, line)
	return nil
}

func (m *MemoryAdapter) RemoveLine(_ context.Context, buyerID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[buyerID]
	for i := range lines {
		if lines[i].ProductID == productID {
			m.carts[buyerID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return port.ErrNotFound
}

func (m *MemoryAdapter) ClearCart(_ context.Context, buyerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, buyerID)
	return nil
}

func (m *MemoryAdapter) GetCartLines(_ context.Context, buyerID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]domain.CartLine, len(m.carts[buyerID]))
	copy(lines, m.carts[buyerID])
	return lines, nil
}

// --- OrderRepository ---

func (m *MemoryAdapter) CreateOrders(_ context.Context, orders []domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// First pass: validate totals and durable stock for every line.
	needed := make(map[string]int)
	for i := range orders {
		if !orders[i].Total.Equal(orders[i].LinesTotal()) {
			return fmt.Errorf("order %s: total does not match its lines", orders[i].ID)
		}
		for _, line := range orders[i].Lines {
			needed[line.ProductID] += line.Quantity
		}
	}
	for productID, qty := range needed {
		inv, ok := m.inventory[productID]
		if !ok || inv.Available < qty {
			return fmt.Errorf("product %s: %w", productID, port.ErrConflict)
		}
	}

	// Second pass: apply.
	for productID, qty := range needed {
		inv := m.inventory[productID]
		inv.Available -= qty
		inv.Version++
		inv.UpdatedAt = time.Now()
	}
	for i := range orders {
		order := orders[i]
		m.orders[order.ID] = &order
	}
	delete(m.carts, orders[0].BuyerID)
	return nil
}

func (m *MemoryAdapter) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *order
	cp.Lines = append([]domain.OrderLine(nil), order.Lines...)
	return &cp, nil
}

func (m *MemoryAdapter) UpdateOrderStatus(_ context.Context, orderID string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return port.ErrNotFound
	}
	if order.Status != from {
		return port.ErrConflict
	}
	order.Status = to
	order.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryAdapter) SetReceipt(_ context.Context, orderID, receiptRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return port.ErrNotFound
	}
	if order.Method != domain.PaymentMethodTransfer {
		return port.ErrConflict
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusVerifying {
		return port.ErrConflict
	}
	order.Status = domain.OrderStatusVerifying
	order.ReceiptRef = receiptRef
	order.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryAdapter) ListPurchases(_ context.Context, buyerID string) ([]domain.Order, error) {
	return m.filterOrders(func(o *domain.Order) bool { return o.BuyerID == buyerID })
}

func (m *MemoryAdapter) ListSales(_ context.Context, vendorID string) ([]domain.Order, error) {
	return m.filterOrders(func(o *domain.Order) bool { return o.VendorID == vendorID })
}

func (m *MemoryAdapter) ListStalePending(_ context.Context, cutoff time.Time) ([]domain.Order, error) {
	return m.filterOrders(func(o *domain.Order) bool {
		return o.Status == domain.OrderStatusPending && o.CreatedAt.Before(cutoff)
	})
}

func (m *MemoryAdapter) filterOrders(keep func(*domain.Order) bool) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Order
	for _, order := range m.orders {
		if keep(order) {
			cp := *order
			cp.Lines = append([]domain.OrderLine(nil), order.Lines...)
			result = append(result, cp)
		}
	}
	return result, nil
}

// --- InventoryRepository ---

func (m *MemoryAdapter) GetInventory(_ context.Context, productID string) (*domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inventory[productID]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryAdapter) Restock(_ context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inventory[productID]
	if !ok {
		return port.ErrNotFound
	}
	inv.Available += quantity
	inv.Version++
	inv.UpdatedAt = time.Now()
	return nil
}

// --- Catalog ---

func (m *MemoryAdapter) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &p, nil
}

func (m *MemoryAdapter) GetVendor(_ context.Context, vendorID string) (*domain.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[vendorID]
	if !ok {
		return nil, port.ErrNotFound
	}
	return &v, nil
}
