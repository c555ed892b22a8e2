package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimulatedGateway stands in for a card processor.  It approves every
// charge unless the amount exceeds DeclineAbove, and repeats the same
// transaction id for a repeated idempotency key.
type SimulatedGateway struct {
	DeclineAbove int64         // 0 never declines
	Latency      time.Duration // artificial processing delay

	mu   sync.Mutex
	seen map[string]string
}

// NewSimulatedGateway builds a gateway with the given decline threshold.
func NewSimulatedGateway(declineAbove int64, latency time.Duration) *SimulatedGateway {
	return &SimulatedGateway{DeclineAbove: declineAbove, Latency: latency, seen: map[string]string{}}
}

func (g *SimulatedGateway) Authorize(ctx context.Context, amount int64, idempotencyKey string) (string, error) {
	if g.Latency > 0 {
		t := time.NewTimer(g.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	if g.DeclineAbove > 0 && amount > g.DeclineAbove {
		return "", ErrGatewayDeclined
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = map[string]string{}
	}
	if idempotencyKey != "" {
		if txn, ok := g.seen[idempotencyKey]; ok {
			return txn, nil
		}
	}
	txn := "txn_" + uuid.NewString()
	if idempotencyKey != "" {
		g.seen[idempotencyKey] = txn
	}
	return txn, nil
}
