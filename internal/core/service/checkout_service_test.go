package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/storage"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
)

type checkoutFixture struct {
	mem      *storage.MemoryAdapter
	gateway  *mockGateway
	notifier *mockNotifier
	svc      *CheckoutService
}

// Two vendors: vendor-a has disclosed a bank account, vendor-b has not.
func newCheckoutFixture() *checkoutFixture {
	mem := storage.NewMemoryAdapter()
	mem.SeedVendor(domain.Vendor{ID: "vendor-a", Name: "Vendor A", BankAccount: "123-456"})
	mem.SeedVendor(domain.Vendor{ID: "vendor-b", Name: "Vendor B"})
	mem.SeedProduct(domain.Product{
		ID: "product-x", VendorID: "vendor-a", Name: "Product X",
		Price: decimal.NewFromInt(10),
	}, 5)
	mem.SeedProduct(domain.Product{
		ID: "product-y", VendorID: "vendor-b", Name: "Product Y",
		Price: decimal.NewFromInt(5),
	}, 5)

	gateway := &mockGateway{}
	notifier := &mockNotifier{}
	svc := NewCheckoutService(mem, mem, mem, mem, gateway, notifier, zerolog.Nop(), time.Second)
	return &checkoutFixture{mem: mem, gateway: gateway, notifier: notifier, svc: svc}
}

func (f *checkoutFixture) fillCart(t *testing.T, buyerID string, items map[string]int) {
	t.Helper()
	carts := NewCartService(f.mem, f.mem, zerolog.Nop())
	for productID, qty := range items {
		if err := carts.AddOrUpdate(context.Background(), buyerID, productID, qty); err != nil {
			t.Fatalf("fill cart: %v", err)
		}
	}
}

func TestCheckout_FanOutPerVendor(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	f.fillCart(t, "buyer-1", map[string]int{"product-x": 2, "product-y": 1})

	created, err := f.svc.Checkout(ctx, "buyer-1", domain.PaymentMethodTransfer, "")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(created))
	}

	// Vendor groups come back sorted by vendor id.
	orderA, orderB := created[0].Order, created[1].Order
	if orderA.VendorID != "vendor-a" || orderB.VendorID != "vendor-b" {
		t.Fatalf("unexpected vendors: %s, %s", orderA.VendorID, orderB.VendorID)
	}
	if !orderA.Total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected vendor-a total 20, got %s", orderA.Total)
	}
	if !orderB.Total.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected vendor-b total 5, got %s", orderB.Total)
	}
	for _, co := range created {
		if co.Order.Status != domain.OrderStatusPending {
			t.Errorf("expected PENDIENTE, got %s", co.Order.Status)
		}
		if co.Order.CheckoutID != created[0].Order.CheckoutID {
			t.Error("orders of one checkout must share the checkout id")
		}
	}

	// Disclosure flag follows the vendor's payment fields.
	if !created[0].VendorPaymentDisclosed {
		t.Error("vendor-a should be payment-disclosed")
	}
	if created[1].VendorPaymentDisclosed {
		t.Error("vendor-b should be payment-undisclosed")
	}

	// Cart empties only after the orders are durable.
	lines, _ := f.mem.GetCartLines(ctx, "buyer-1")
	if len(lines) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(lines))
	}

	// Both ledgers decremented.
	if got := f.mem.CachedStock("product-x"); got != 3 {
		t.Errorf("expected cached stock 3 for product-x, got %d", got)
	}
	inv, _ := f.mem.GetInventory(ctx, "product-x")
	if inv.Available != 3 {
		t.Errorf("expected durable stock 3 for product-x, got %d", inv.Available)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.Checkout(context.Background(), "buyer-1", domain.PaymentMethodTransfer, "")
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart, got: %v", err)
	}
}

func TestCheckout_InvalidMethod(t *testing.T) {
	f := newCheckoutFixture()
	f.fillCart(t, "buyer-1", map[string]int{"product-x": 1})

	_, err := f.svc.Checkout(context.Background(), "buyer-1", "CHEQUE", "")
	if !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Errorf("expected ErrInvalidPaymentMethod, got: %v", err)
	}
}

func TestCheckout_InsufficientStockIsAllOrNothing(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	// product-y has 5 in stock; asking for 6 must sink the whole checkout,
	// including vendor-a's perfectly available line.
	f.fillCart(t, "buyer-1", map[string]int{"product-x": 2, "product-y": 6})

	_, err := f.svc.Checkout(ctx, "buyer-1", domain.PaymentMethodTransfer, "")
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	// No net inventory change for either product.
	if got := f.mem.CachedStock("product-x"); got != 5 {
		t.Errorf("expected cached stock 5 for product-x, got %d", got)
	}
	if got := f.mem.CachedStock("product-y"); got != 5 {
		t.Errorf("expected cached stock 5 for product-y, got %d", got)
	}

	// No orders, cart untouched.
	orders, _ := f.mem.ListPurchases(ctx, "buyer-1")
	if len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
	lines, _ := f.mem.GetCartLines(ctx, "buyer-1")
	if len(lines) != 2 {
		t.Errorf("expected cart to survive, got %d lines", len(lines))
	}
}

func TestCheckout_RepricesAgainstCatalog(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	// Stale snapshot straight into the cart: 1 instead of the catalog's 10.
	f.mem.UpsertLine(ctx, domain.CartLine{
		BuyerID: "buyer-1", ProductID: "product-x", Quantity: 2,
		UnitPrice: decimal.NewFromInt(1), AddedAt: time.Now(),
	})

	created, err := f.svc.Checkout(ctx, "buyer-1", domain.PaymentMethodTransfer, "")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if !created[0].Order.Total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected re-priced total 20, got %s", created[0].Order.Total)
	}
}

func TestCheckout_DuplicateIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	f.fillCart(t, "buyer-1", map[string]int{"product-x": 1})
	if _, err := f.svc.Checkout(ctx, "buyer-1", domain.PaymentMethodTransfer, "key-1"); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	f.fillCart(t, "buyer-1", map[string]int{"product-x": 1})
	_, err := f.svc.Checkout(ctx, "buyer-1", domain.PaymentMethodTransfer, "key-1")
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// The retry must not have decremented again.
	if got := f.mem.CachedStock("product-x"); got != 4 {
		t.Errorf("expected cached stock 4, got %d", got)
	}
}

func TestCheckout_CardConfirmsImmediately(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	f.fillCart(t, "buyer-1", map[string]int{"product-x": 1, "product-y": 1})

	created, err := f.svc.Checkout(ctx, "buyer-1", domain.PaymentMethodCard, "")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if f.gateway.chargeCount() != 2 {
		t.Errorf("expected 2 charges, got %d", f.gateway.chargeCount())
	}
	for _, co := range created {
		if co.Order.Status != domain.OrderStatusPaid {
			t.Errorf("expected PAGADO, got %s", co.Order.Status)
		}
		stored, _ := f.mem.GetOrder(ctx, co.Order.ID)
		if stored.Status != domain.OrderStatusPaid {
			t.Errorf("expected stored PAGADO, got %s", stored.Status)
		}
	}
}

func TestCheckout_CardGatewayFailureLeavesPending(t *testing.T) {
	f := newCheckoutFixture()
	f.gateway.err = errors.New("card declined")
	ctx := context.Background()

	f.fillCart(t, "buyer-1", map[string]int{"product-x": 1})

	created, err := f.svc.Checkout(ctx, "buyer-1", domain.PaymentMethodCard, "")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if created[0].Order.Status != domain.OrderStatusPending {
		t.Errorf("expected PENDIENTE after declined charge, got %s", created[0].Order.Status)
	}
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	f.mem.SeedProduct(domain.Product{
		ID: "product-z", VendorID: "vendor-a", Name: "Product Z",
		Price: decimal.NewFromInt(7),
	}, 1)

	buyers := []string{"buyer-1", "buyer-2"}
	for _, b := range buyers {
		f.fillCart(t, b, map[string]int{"product-z": 1})
	}

	var successCount, stockFailCount atomic.Int32
	var wg sync.WaitGroup
	for _, b := range buyers {
		wg.Add(1)
		go func(buyerID string) {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, buyerID, domain.PaymentMethodTransfer, "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				stockFailCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(b)
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
	if stockFailCount.Load() != 1 {
		t.Errorf("expected exactly 1 stock failure, got %d", stockFailCount.Load())
	}
	if got := f.mem.CachedStock("product-z"); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestCheckout_ManyConcurrentBuyers(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	initialStock := 20
	totalBuyers := 50
	f.mem.SeedProduct(domain.Product{
		ID: "product-hot", VendorID: "vendor-a", Name: "Hot Product",
		Price: decimal.NewFromInt(3),
	}, initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalBuyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			buyerID := "hot-buyer-" + string(rune('a'+n%26)) + string(rune('a'+n/26))
			f.mem.UpsertLine(ctx, domain.CartLine{
				BuyerID: buyerID, ProductID: "product-hot", Quantity: 1,
				UnitPrice: decimal.NewFromInt(3), AddedAt: time.Now(),
			})
			if _, err := f.svc.Checkout(ctx, buyerID, domain.PaymentMethodTransfer, ""); err == nil {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if got := f.mem.CachedStock("product-hot"); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}
