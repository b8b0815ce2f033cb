package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/payment"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/adapter/storage"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	vendorID      = "vendor-stress"
	productID     = "producto-estrella"
	initialStock  = 20
	totalRequests = 50
)

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, domain.OrderEvent) error { return nil }

// Hammers checkout with concurrent buyers all wanting the same product.
// Redis is the serialization point under test: exactly initialStock
// checkouts may succeed.
func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	rdb.Del(ctx, "stock:"+productID)

	redisAdapter := storage.NewRedisAdapter(rdb)
	if err := redisAdapter.SetStock(ctx, productID, initialStock); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	mem := storage.NewMemoryAdapter()
	mem.SeedVendor(domain.Vendor{ID: vendorID, Name: "Stress Vendor", BankAccount: "000-1"})
	// Durable stock is ample on purpose; the cache gate is what's measured.
	mem.SeedProduct(domain.Product{
		ID: productID, VendorID: vendorID, Name: "Producto Estrella",
		Price: decimal.NewFromInt(10),
	}, totalRequests)

	checkout := service.NewCheckoutService(
		mem, mem, redisAdapter, mem,
		payment.NewSimulatedGateway(0, nil), noopNotifier{}, zerolog.Nop(), time.Second,
	)

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()

			buyerID := fmt.Sprintf("buyer-%d", buyer)
			if err := mem.UpsertLine(ctx, domain.CartLine{
				BuyerID: buyerID, ProductID: productID, Quantity: 1,
				UnitPrice: decimal.NewFromInt(10), AddedAt: time.Now(),
			}); err != nil {
				failCount.Add(1)
				return
			}

			if _, err := checkout.Checkout(ctx, buyerID, domain.PaymentMethodTransfer, ""); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d checkouts succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	finalStock, _ := rdb.Get(ctx, "stock:"+productID).Int()
	fmt.Printf("Final Redis Stock: %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}
}
