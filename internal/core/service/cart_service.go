package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/port"
)

// CartService owns the buyer's mutable cart. Lines are keyed by
// (buyer, product); quantity writes are absolute, not additive.
type CartService struct {
	carts   port.CartRepository
	catalog port.Catalog
	log     zerolog.Logger
}

func NewCartService(carts port.CartRepository, catalog port.Catalog, log zerolog.Logger) *CartService {
	return &CartService{carts: carts, catalog: catalog, log: log}
}

// AddOrUpdate sets the quantity of the (buyer, product) line, snapshotting
// the current catalog price. An existing line is overwritten.
func (s *CartService) AddOrUpdate(ctx context.Context, buyerID, productID string, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("quantity %d: %w", quantity, ErrInvalidQuantity)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return fmt.Errorf("lookup product: %w", err)
	}

	line := domain.CartLine{
		BuyerID:   buyerID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: product.Price,
		AddedAt:   time.Now(),
	}
	if err := s.carts.UpsertLine(ctx, line); err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}

	s.log.Debug().Str("buyer_id", buyerID).Str("product_id", productID).
		Int("quantity", quantity).Msg("cart line set")
	return nil
}

func (s *CartService) Remove(ctx context.Context, buyerID, productID string) error {
	if err := s.carts.RemoveLine(ctx, buyerID, productID); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return fmt.Errorf("cart line %s: %w", productID, ErrNotFound)
		}
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, buyerID string) error {
	if err := s.carts.ClearCart(ctx, buyerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Get returns the buyer's lines in add order plus their computed total.
func (s *CartService) Get(ctx context.Context, buyerID string) (domain.Cart, error) {
	lines, err := s.carts.GetCartLines(ctx, buyerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart lines: %w", err)
	}
	return domain.NewCart(buyerID, lines), nil
}
