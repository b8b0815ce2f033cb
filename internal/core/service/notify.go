package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/core/domain"
	"github.com/EMILIOABRIL05/Marketplace-sub000/internal/port"
)

const notifyTimeout = 5 * time.Second

// publishEvent delivers a state-change event to the counterpart without
// blocking the transition that produced it. Failures are logged and
// swallowed; notification is not part of the transaction.
func publishEvent(log zerolog.Logger, notifier port.Notifier, order domain.Order, fromUserID, toUserID string) {
	event := domain.OrderEvent{
		OrderID:    order.ID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     order.Status,
		OccurredAt: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := notifier.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("order_id", order.ID).
				Str("status", order.Status.String()).Msg("failed to deliver order event")
		}
	}()
}
