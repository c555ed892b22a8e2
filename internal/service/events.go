package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/ledger"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/queue"
)

// publish sends ev and swallows the error after logging it.
func publish(ctx context.Context, events EventPublisher, log *slog.Logger, routingKey string, ev any) {
	if events == nil {
		return
	}
	if err := events.Publish(context.WithoutCancel(ctx), routingKey, ev); err != nil {
		log.WarnContext(ctx, "event publish failed", "routing_key", routingKey, "error", err)
	}
}

func publishPayment(ctx context.Context, events EventPublisher, log *slog.Logger, p *model.Payment, view ledger.View, at time.Time) {
	ev := queue.PaymentRecordedEvent{
		PaymentID:     p.ID,
		ReservationID: p.ReservationID,
		Amount:        p.Amount,
		Method:        string(p.Method),
		Balance:       view.Balance,
		PaymentStatus: string(view.Status),
		RecordedAt:    at.Format(time.RFC3339),
	}
	if p.TransactionID != nil {
		ev.TransactionID = *p.TransactionID
	}
	publish(ctx, events, log, queue.PaymentRecordedQueue, ev)
}
