package port

import "context"

type CacheRepository interface {
	// DecrementStock atomically decreases stock, returns false if insufficient
	DecrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	// IncrementStock restores stock (compensation for failed fan-out or cancellation)
	IncrementStock(ctx context.Context, productID string, quantity int) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
