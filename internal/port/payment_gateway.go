package port

import (
	"context"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
)

// PaymentGateway charges a CARD order. Implementations must honor ctx
// cancellation; the caller bounds the call with a timeout.
type PaymentGateway interface {
	Charge(ctx context.Context, order domain.Order) error
}
