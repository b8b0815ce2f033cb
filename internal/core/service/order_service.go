package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/port"
)

// MaxReceiptSize bounds receipt uploads.
const MaxReceiptSize = 5 << 20 // 5 MiB

// OrderService drives the per-order lifecycle: receipt upload by the buyer,
// funds confirmation by the vendor, cancellation and staleness expiry.
// Per-order serialization comes from conditional status updates in the
// repository, so two racing writers on the same order cannot both win.
type OrderService struct {
	orders    port.OrderRepository
	inventory port.InventoryRepository
	cache     port.CacheRepository
	receipts  port.ReceiptStore
	notifier  port.Notifier
	log       zerolog.Logger
}

func NewOrderService(
	orders port.OrderRepository,
	inventory port.InventoryRepository,
	cache port.CacheRepository,
	receipts port.ReceiptStore,
	notifier port.Notifier,
	log zerolog.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		cache:     cache,
		receipts:  receipts,
		notifier:  notifier,
		log:       log,
	}
}

// ReceiptUpload is the buyer-supplied proof-of-payment image.
type ReceiptUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

func (u ReceiptUpload) validate() error {
	if u.Size <= 0 {
		return fmt.Errorf("empty file: %w", ErrUploadValidation)
	}
	if u.Size > MaxReceiptSize {
		return fmt.Errorf("file exceeds %d bytes: %w", MaxReceiptSize, ErrUploadValidation)
	}
	if !strings.HasPrefix(u.ContentType, "image/") {
		return fmt.Errorf("content type %q is not an image: %w", u.ContentType, ErrUploadValidation)
	}
	return nil
}

// AttachReceipt stores the receipt and moves a TRANSFER order to
// PAGADO_VERIFICANDO. Only the order's buyer may upload; re-uploading while
// already verifying replaces the stored reference. The upload is validated
// before any state mutation.
func (s *OrderService) AttachReceipt(ctx context.Context, buyerID, orderID string, upload ReceiptUpload) (*domain.Order, error) {
	if err := upload.validate(); err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, fmt.Errorf("order %s belongs to another buyer: %w", orderID, ErrForbidden)
	}
	if order.Method != domain.PaymentMethodTransfer {
		return nil, fmt.Errorf("order %s is not a transfer order: %w", orderID, ErrInvalidStateTransition)
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusVerifying {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrInvalidStateTransition)
	}

	ref, err := s.receipts.Save(ctx, orderID, upload.Filename, upload.Content)
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}

	if err := s.orders.SetReceipt(ctx, orderID, ref); err != nil {
		if errors.Is(err, port.ErrConflict) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrInvalidStateTransition)
		}
		return nil, fmt.Errorf("set receipt: %w", err)
	}

	order.Status = domain.OrderStatusVerifying
	order.ReceiptRef = ref

	s.log.Info().Str("order_id", orderID).Str("buyer_id", buyerID).Msg("receipt attached")
	publishEvent(s.log, s.notifier, *order, order.BuyerID, order.VendorID)
	return order, nil
}

// ConfirmPayment is the vendor acknowledging receipt of funds, moving the
// order from PAGADO_VERIFICANDO to PAGADO. Confirming one vendor's order
// never touches sibling orders of the same checkout.
func (s *OrderService) ConfirmPayment(ctx context.Context, vendorID, orderID string) (*domain.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.VendorID != vendorID {
		return nil, fmt.Errorf("order %s belongs to another vendor: %w", orderID, ErrForbidden)
	}

	err = s.orders.UpdateOrderStatus(ctx, orderID, domain.OrderStatusVerifying, domain.OrderStatusPaid)
	if err != nil {
		if errors.Is(err, port.ErrConflict) {
			return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrInvalidStateTransition)
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	order.Status = domain.OrderStatusPaid

	s.log.Info().Str("order_id", orderID).Str("vendor_id", vendorID).Msg("payment confirmed")
	publishEvent(s.log, s.notifier, *order, order.VendorID, order.BuyerID)
	return order, nil
}

// Cancel is buyer-initiated and only valid from PENDIENTE. Reserved
// inventory goes back to the ledger.
func (s *OrderService) Cancel(ctx context.Context, buyerID, orderID string) (*domain.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, fmt.Errorf("order %s belongs to another buyer: %w", orderID, ErrForbidden)
	}

	if err := s.cancel(ctx, order); err != nil {
		return nil, err
	}
	publishEvent(s.log, s.notifier, *order, order.BuyerID, order.VendorID)
	return order, nil
}

// ExpireStale cancels PENDIENTE orders older than maxAge. Run periodically
// by the server; returns how many orders were expired.
func (s *OrderService) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := s.orders.ListStalePending(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	expired := 0
	for i := range stale {
		order := &stale[i]
		if err := s.cancel(ctx, order); err != nil {
			// Lost the race against a receipt upload or confirmation.
			if errors.Is(err, ErrInvalidStateTransition) {
				continue
			}
			return expired, err
		}
		expired++
		publishEvent(s.log, s.notifier, *order, order.VendorID, order.BuyerID)
	}

	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("expired stale pending orders")
	}
	return expired, nil
}

func (s *OrderService) cancel(ctx context.Context, order *domain.Order) error {
	err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	if err != nil {
		if errors.Is(err, port.ErrConflict) {
			return fmt.Errorf("order %s is not pending: %w", order.ID, ErrInvalidStateTransition)
		}
		return fmt.Errorf("update order status: %w", err)
	}
	order.Status = domain.OrderStatusCancelled

	// The order is already cancelled; a failed release is logged, not
	// surfaced.
	releaseCtx := context.WithoutCancel(ctx)
	for _, line := range order.Lines {
		if err := s.cache.IncrementStock(releaseCtx, line.ProductID, line.Quantity); err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID).Str("product_id", line.ProductID).
				Msg("CRITICAL: cache stock release failed")
		}
		if err := s.inventory.Restock(releaseCtx, line.ProductID, line.Quantity); err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID).Str("product_id", line.ProductID).
				Msg("CRITICAL: durable restock failed")
		}
	}
	return nil
}

// Get returns one order; only its buyer or vendor may read it.
func (s *OrderService) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID && order.VendorID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrForbidden)
	}
	return order, nil
}

// ListPurchases is the buyer's order history ("Mis Compras").
func (s *OrderService) ListPurchases(ctx context.Context, buyerID string) ([]domain.Order, error) {
	orders, err := s.orders.ListPurchases(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return orders, nil
}

// ListSales is the vendor's order history ("Mis Ventas").
func (s *OrderService) ListSales(ctx context.Context, vendorID string) ([]domain.Order, error) {
	orders, err := s.orders.ListSales(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return orders, nil
}

func (s *OrderService) getOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}
