package port

import (
	"context"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
)

// Catalog is the read-only product/vendor collaborator. Checkout re-prices
// every cart line against it so a stale snapshot can never be exploited.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error)
}
