package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/port"
)

// CheckoutService fans a buyer's cart out into one order per vendor,
// atomically with the inventory decrement. Either every vendor group is
// created or none is.
type CheckoutService struct {
	carts       port.CartRepository
	orders      port.OrderRepository
	cache       port.CacheRepository
	catalog     port.Catalog
	gateway     port.PaymentGateway
	notifier    port.Notifier
	log         zerolog.Logger
	cardTimeout time.Duration
}

func NewCheckoutService(
	carts port.CartRepository,
	orders port.OrderRepository,
	cache port.CacheRepository,
	catalog port.Catalog,
	gateway port.PaymentGateway,
	notifier port.Notifier,
	log zerolog.Logger,
	cardTimeout time.Duration,
) *CheckoutService {
	return &CheckoutService{
		carts:       carts,
		orders:      orders,
		cache:       cache,
		catalog:     catalog,
		gateway:     gateway,
		notifier:    notifier,
		log:         log,
		cardTimeout: cardTimeout,
	}
}

// CheckoutOrder is a created order plus whether its vendor has disclosed a
// payment handle. An undisclosed vendor is not an error; the buyer settles
// out of band and the flag tells the UI to say so.
type CheckoutOrder struct {
	Order                  domain.Order
	VendorPaymentDisclosed bool
}

type reservation struct {
	productID string
	quantity  int
}

// Checkout converts the buyer's cart into one PENDIENTE order per vendor.
// Stock is reserved per line through the cache CAS; any shortfall releases
// every reservation made in this call and fails the whole checkout. The
// durable writes (orders, lines, inventory rows, cart clear) happen in a
// single transaction. CARD orders are then driven to PAGADO through the
// gateway under a bounded context.
func (s *CheckoutService) Checkout(ctx context.Context, buyerID string, method domain.PaymentMethod, idempotencyKey string) ([]CheckoutOrder, error) {
	if !method.IsValid() {
		return nil, fmt.Errorf("method %q: %w", method, ErrInvalidPaymentMethod)
	}

	lines, err := s.carts.GetCartLines(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("get cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	if idempotencyKey != "" {
		ok, err := s.cache.SetIdempotency(ctx, "checkout:"+buyerID+":"+idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
	}

	checkoutID := uuid.NewString()

	// Re-price every line against the live catalog and group by vendor.
	groups := make(map[string][]domain.OrderLine)
	for _, line := range lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, port.ErrNotFound) {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, ErrNotFound)
			}
			return nil, fmt.Errorf("lookup product %s: %w", line.ProductID, err)
		}
		groups[product.VendorID] = append(groups[product.VendorID], domain.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
	}

	reserved, err := s.reserveStock(ctx, lines)
	if err != nil {
		return nil, err
	}

	vendorIDs := make([]string, 0, len(groups))
	for vendorID := range groups {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Strings(vendorIDs)

	now := time.Now()
	orders := make([]domain.Order, 0, len(vendorIDs))
	for _, vendorID := range vendorIDs {
		order := domain.Order{
			ID:         uuid.NewString(),
			CheckoutID: checkoutID,
			BuyerID:    buyerID,
			VendorID:   vendorID,
			Method:     method,
			Status:     domain.OrderStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		for _, line := range groups[vendorID] {
			line.OrderID = order.ID
			order.Lines = append(order.Lines, line)
		}
		order.Total = order.LinesTotal()
		orders = append(orders, order)
	}

	if err := s.orders.CreateOrders(ctx, orders); err != nil {
		s.releaseStock(ctx, reserved)
		if errors.Is(err, port.ErrConflict) {
			return nil, fmt.Errorf("checkout %s: %w", checkoutID, ErrInsufficientStock)
		}
		return nil, fmt.Errorf("create orders: %w", err)
	}

	s.log.Info().Str("checkout_id", checkoutID).Str("buyer_id", buyerID).
		Int("orders", len(orders)).Str("method", string(method)).Msg("checkout committed")

	for _, order := range orders {
		publishEvent(s.log, s.notifier, order, order.BuyerID, order.VendorID)
	}

	if method == domain.PaymentMethodCard {
		for i := range orders {
			s.confirmCard(ctx, &orders[i])
		}
	}

	return s.attachDisclosure(ctx, orders)
}

// reserveStock decrements the cache row for every line, releasing what was
// already taken if any single line falls short.
func (s *CheckoutService) reserveStock(ctx context.Context, lines []domain.CartLine) ([]reservation, error) {
	var reserved []reservation
	for _, line := range lines {
		ok, err := s.cache.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.releaseStock(ctx, reserved)
			return nil, fmt.Errorf("stock decrement %s: %w", line.ProductID, err)
		}
		if !ok {
			s.releaseStock(ctx, reserved)
			return nil, fmt.Errorf("product %s: %w", line.ProductID, ErrInsufficientStock)
		}
		reserved = append(reserved, reservation{productID: line.ProductID, quantity: line.Quantity})
	}
	return reserved, nil
}

// releaseStock compensates a failed fan-out. Runs detached from the request
// context so a canceled request still restores stock.
func (s *CheckoutService) releaseStock(ctx context.Context, reserved []reservation) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range reserved {
		if err := s.cache.IncrementStock(ctx, r.productID, r.quantity); err != nil {
			s.log.Error().Err(err).Str("product_id", r.productID).
				Int("quantity", r.quantity).Msg("CRITICAL: stock release failed")
		}
	}
}

// confirmCard drives a freshly created CARD order to PAGADO. A gateway
// failure or timeout leaves the order PENDIENTE; the buyer may retry or
// cancel.
func (s *CheckoutService) confirmCard(ctx context.Context, order *domain.Order) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.cardTimeout)
	defer cancel()

	if err := s.gateway.Charge(chargeCtx, *order); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("card charge failed, order stays pending")
		return
	}

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusPaid); err != nil {
		s.log.Error().Err(err).Str("order_id", order.ID).Msg("failed to mark card order paid")
		return
	}
	order.Status = domain.OrderStatusPaid

	publishEvent(s.log, s.notifier, *order, order.BuyerID, order.VendorID)
}

func (s *CheckoutService) attachDisclosure(ctx context.Context, orders []domain.Order) ([]CheckoutOrder, error) {
	disclosed := make(map[string]bool)
	result := make([]CheckoutOrder, 0, len(orders))
	for _, order := range orders {
		flag, seen := disclosed[order.VendorID]
		if !seen {
			vendor, err := s.catalog.GetVendor(ctx, order.VendorID)
			if err != nil {
				// The orders already exist; a vendor lookup failure only
				// degrades the flag.
				s.log.Warn().Err(err).Str("vendor_id", order.VendorID).Msg("vendor lookup failed")
				flag = false
			} else {
				flag = vendor.PaymentDisclosed()
			}
			disclosed[order.VendorID] = flag
		}
		result = append(result, CheckoutOrder{Order: order, VendorPaymentDisclosed: flag})
	}
	return result, nil
}
