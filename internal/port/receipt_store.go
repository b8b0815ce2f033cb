package port

import (
	"context"
	"io"
)

// ReceiptStore persists a proof-of-payment image and returns a stable
// reference stored on the order.
type ReceiptStore interface {
	Save(ctx context.Context, orderID, filename string, content io.Reader) (string, error)
}
