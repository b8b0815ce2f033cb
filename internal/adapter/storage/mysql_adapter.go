package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/port"
)

// MySQLAdapter is the durable store for carts, orders, inventory and the
// catalog tables. State transitions and stock decrements are conditional
// updates guarded by RowsAffected, so concurrent writers linearize on the
// row without explicit locks.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// --- CartRepository ---

func (m *MySQLAdapter) UpsertLine(ctx context.Context, line domain.CartLine) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_lines (buyer_id, product_id, quantity, unit_price, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), unit_price = VALUES(unit_price)`,
		line.BuyerID, line.ProductID, line.Quantity, line.UnitPrice, line.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RemoveLine(ctx context.Context, buyerID, productID string) error {
	result, err := m.db.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE buyer_id = ? AND product_id = ?`,
		buyerID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, buyerID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE buyer_id = ?`, buyerID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetCartLines(ctx context.Context, buyerID string) ([]domain.CartLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT buyer_id, product_id, quantity, unit_price, added_at
		FROM cart_lines WHERE buyer_id = ?
		ORDER BY added_at, product_id`, buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.BuyerID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// --- OrderRepository ---

func (m *MySQLAdapter) CreateOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return errors.New("no orders to create")
	}

	for i := range orders {
		if !orders[i].Total.Equal(orders[i].LinesTotal()) {
			return fmt.Errorf("order %s: total does not match its lines", orders[i].ID)
		}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, order := range orders {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, checkout_id, buyer_id, vendor_id, total, method, status, receipt_ref, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.CheckoutID, order.BuyerID, order.VendorID, order.Total,
			string(order.Method), string(order.Status), order.ReceiptRef,
			order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, line := range order.Lines {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
				VALUES (?, ?, ?, ?)`,
				line.OrderID, line.ProductID, line.Quantity, line.UnitPrice,
			)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}

			result, err := tx.ExecContext(ctx, `
				UPDATE inventory
				SET available = available - ?, version = version + 1, updated_at = NOW()
				WHERE product_id = ? AND available >= ?`,
				line.Quantity, line.ProductID, line.Quantity,
			)
			if err != nil {
				return fmt.Errorf("decrement inventory: %w", err)
			}
			rows, _ := result.RowsAffected()
			if rows == 0 {
				return fmt.Errorf("product %s: %w", line.ProductID, port.ErrConflict)
			}
		}
	}

	// Every order of one checkout shares the buyer; clear the cart inside
	// the same transaction so it empties only when the orders are durable.
	_, err = tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE buyer_id = ?`, orders[0].BuyerID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := m.scanOrder(m.db.QueryRowContext(ctx, `
		SELECT id, checkout_id, buyer_id, vendor_id, total, method, status, receipt_ref, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	))
	if err != nil {
		return nil, err
	}

	if err := m.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW()
		WHERE id = ? AND status = ?`,
		string(to), orderID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrConflict
	}
	return nil
}

func (m *MySQLAdapter) SetReceipt(ctx context.Context, orderID, receiptRef string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, receipt_ref = ?, updated_at = NOW()
		WHERE id = ? AND method = ? AND status IN (?, ?)`,
		string(domain.OrderStatusVerifying), receiptRef, orderID,
		string(domain.PaymentMethodTransfer),
		string(domain.OrderStatusPending), string(domain.OrderStatusVerifying),
	)
	if err != nil {
		return fmt.Errorf("set receipt: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrConflict
	}
	return nil
}

func (m *MySQLAdapter) ListPurchases(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return m.listOrders(ctx, `buyer_id = ?`, buyerID)
}

func (m *MySQLAdapter) ListSales(ctx context.Context, vendorID string) ([]domain.Order, error) {
	return m.listOrders(ctx, `vendor_id = ?`, vendorID)
}

func (m *MySQLAdapter) ListStalePending(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	return m.listOrders(ctx, `status = 'PENDIENTE' AND created_at < ?`, cutoff)
}

func (m *MySQLAdapter) listOrders(ctx context.Context, where string, arg any) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, checkout_id, buyer_id, vendor_id, total, method, status, receipt_ref, created_at, updated_at
		FROM orders WHERE `+where+` ORDER BY created_at DESC, id`, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := m.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := m.loadLines(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (m *MySQLAdapter) scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order          domain.Order
		method, status string
		receiptRef     sql.NullString
	)
	err := row.Scan(&order.ID, &order.CheckoutID, &order.BuyerID, &order.VendorID,
		&order.Total, &method, &status, &receiptRef, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	order.Method = domain.PaymentMethod(method)
	order.Status = domain.OrderStatus(status)
	order.ReceiptRef = receiptRef.String
	return &order, nil
}

func (m *MySQLAdapter) loadLines(ctx context.Context, order *domain.Order) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price
		FROM order_lines WHERE order_id = ? ORDER BY product_id`, order.ID,
	)
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	return rows.Err()
}

// --- InventoryRepository ---

func (m *MySQLAdapter) GetInventory(ctx context.Context, productID string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := m.db.QueryRowContext(ctx, `
		SELECT product_id, available, version, updated_at
		FROM inventory WHERE product_id = ?`, productID,
	).Scan(&inv.ProductID, &inv.Available, &inv.Version, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

// ListInventory returns every durable row, used at startup to mirror stock
// into the cache.
func (m *MySQLAdapter) ListInventory(ctx context.Context) ([]domain.Inventory, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, available, version, updated_at FROM inventory`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var records []domain.Inventory
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.ProductID, &inv.Available, &inv.Version, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		records = append(records, inv)
	}
	return records, rows.Err()
}

func (m *MySQLAdapter) Restock(ctx context.Context, productID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET available = available + ?, version = version + 1, updated_at = NOW()
		WHERE product_id = ?`,
		quantity, productID,
	)
	if err != nil {
		return fmt.Errorf("restock inventory: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

// --- Catalog ---

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, name, price FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.VendorID, &p.Name, &p.Price)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error) {
	var (
		v                      domain.Vendor
		bank, qrHandle, wallet sql.NullString
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, bank_account, qr_handle, wallet_handle
		FROM vendors WHERE id = ?`, vendorID,
	).Scan(&v.ID, &v.Name, &bank, &qrHandle, &wallet)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vendor: %w", err)
	}
	v.BankAccount = bank.String
	v.QRHandle = qrHandle.String
	v.WalletHandle = wallet.String
	return &v, nil
}
