// Package payment talks to the outside world about money: it authorizes
// card charges against a gateway and acknowledges cash taken at the desk.
// It has no notion of who is paying; callers decide which methods an actor
// may use before calling in.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/model"
)

var (
	ErrGatewayDeclined = errors.New("payment declined by gateway")
	ErrGatewayTimeout  = errors.New("payment gateway timed out")
	ErrInvalidAmount   = errors.New("authorization amount must be positive")
	ErrUnknownMethod   = errors.New("unknown payment method")
)

// Authorization is the adapter's record of money that has moved.
type Authorization struct {
	Method        model.PaymentMethod
	Amount        int64
	TransactionID string // empty for cash
	AuthorizedAt  time.Time
}

// CardGateway is the external processor.  Implementations must return
// ErrGatewayDeclined for a refusal; any other error counts as a failure.
type CardGateway interface {
	Authorize(ctx context.Context, amount int64, idempotencyKey string) (transactionID string, err error)
}

// Adapter bounds gateway calls with a timeout and normalizes their errors.
type Adapter struct {
	gateway CardGateway
	timeout time.Duration
	now     func() time.Time
}

// NewAdapter wraps gateway.  A non-positive timeout disables the bound.
func NewAdapter(gateway CardGateway, timeout time.Duration) *Adapter {
	return &Adapter{gateway: gateway, timeout: timeout, now: func() time.Time { return time.Now().UTC() }}
}

// Authorize dispatches on method.
func (a *Adapter) Authorize(ctx context.Context, method model.PaymentMethod, amount int64, idempotencyKey string) (Authorization, error) {
	switch method {
	case model.MethodCard:
		return a.AuthorizeCard(ctx, amount, idempotencyKey)
	case model.MethodCash:
		return a.AcknowledgeCash(ctx, amount)
	default:
		return Authorization{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// AuthorizeCard charges amount through the gateway.  The call is abandoned
// with ErrGatewayTimeout once the adapter's timeout elapses even if the
// gateway ignores ctx.
func (a *Adapter) AuthorizeCard(ctx context.Context, amount int64, idempotencyKey string) (Authorization, error) {
	if amount <= 0 {
		return Authorization{}, ErrInvalidAmount
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	type result struct {
		txn string
		err error
	}
	done := make(chan result, 1)

	logger.ExternalServiceCall("card-gateway", "authorize", "amount", amount)
	go func() {
		txn, err := a.gateway.Authorize(ctx, amount, idempotencyKey)
		done <- result{txn: txn, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			err := r.err
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrGatewayTimeout
			} else if !errors.Is(err, ErrGatewayDeclined) && !errors.Is(err, ErrGatewayTimeout) {
				err = fmt.Errorf("gateway authorize: %w", err)
			}
			logger.ExternalServiceResult("card-gateway", "authorize", err)
			return Authorization{}, err
		}
		logger.ExternalServiceResult("card-gateway", "authorize", nil, "transaction_id", r.txn)
		return Authorization{
			Method:        model.MethodCard,
			Amount:        amount,
			TransactionID: r.txn,
			AuthorizedAt:  a.now(),
		}, nil
	case <-ctx.Done():
		err := ErrGatewayTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			err = fmt.Errorf("gateway authorize: %w", ctx.Err())
		}
		logger.ExternalServiceResult("card-gateway", "authorize", err)
		return Authorization{}, err
	}
}

// AcknowledgeCash records that cash was received.  No gateway is involved.
func (a *Adapter) AcknowledgeCash(_ context.Context, amount int64) (Authorization, error) {
	if amount <= 0 {
		return Authorization{}, ErrInvalidAmount
	}
	return Authorization{Method: model.MethodCash, Amount: amount, AuthorizedAt: a.now()}, nil
}
