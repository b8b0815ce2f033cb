package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
)

// Mock PaymentGateway
type mockGateway struct {
	mu      sync.Mutex
	err     error
	charged []string
}

func (g *mockGateway) Charge(ctx context.Context, order domain.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.charged = append(g.charged, order.ID)
	return nil
}

func (g *mockGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charged)
}

// Mock Notifier
type mockNotifier struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (n *mockNotifier) Publish(ctx context.Context, event domain.OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Mock ReceiptStore
type mockReceiptStore struct {
	mu    sync.Mutex
	err   error
	saved int
}

func (s *mockReceiptStore) Save(ctx context.Context, orderID, filename string, content io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved++
	return fmt.Sprintf("receipts/%s-%d.png", orderID, s.saved), nil
}

func (s *mockReceiptStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}
