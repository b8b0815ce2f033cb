package port

import (
	"context"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
)

// Notifier delivers order events to the messaging collaborator.
// Best-effort: a delivery failure never rolls back a transition.
type Notifier interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}
