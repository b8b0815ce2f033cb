package payment

import (
	"context"
	"time"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
)

// Outcome decides the result of a simulated charge. Pluggable so tests can
// exercise failure and timeout paths.
type Outcome func(order domain.Order) error

// AlwaysApprove mirrors the gateway the system grew up with: every card
// charge succeeds after the processing delay.
func AlwaysApprove(domain.Order) error { return nil }

// SimulatedGateway stands in for a real card processor: a fixed processing
// delay followed by the configured outcome. The delay respects ctx, so a
// caller-imposed timeout cancels the charge.
type SimulatedGateway struct {
	delay   time.Duration
	outcome Outcome
}

func NewSimulatedGateway(delay time.Duration, outcome Outcome) *SimulatedGateway {
	if outcome == nil {
		outcome = AlwaysApprove
	}
	return &SimulatedGateway{delay: delay, outcome: outcome}
}

func (g *SimulatedGateway) Charge(ctx context.Context, order domain.Order) error {
	timer := time.NewTimer(g.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return g.outcome(order)
	}
}
