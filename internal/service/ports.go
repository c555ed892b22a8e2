package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
)

// Authorizer moves money.  *payment.Adapter satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, method model.PaymentMethod, amount int64, idempotencyKey string) (payment.Authorization, error)
}

// EventPublisher delivers domain events.  Publishing is best effort; a
// failure is logged and never fails the calling operation.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uint64
	Role   string
}

// IsStaff reports whether the actor operates the front desk.
func (a Actor) IsStaff() bool { return a.Role == model.RoleStaff }

// canAccess reports whether actor may read or pay res.
func (a Actor) canAccess(res *model.Reservation) bool {
	if a.IsStaff() {
		return true
	}
	return res.GuestID != nil && *res.GuestID == a.UserID
}

func gatewayError(err error, msg string) *Error {
	switch {
	case errors.Is(err, payment.ErrGatewayDeclined):
		return newError(KindGatewayDeclined, msg+": declined", err)
	case errors.Is(err, payment.ErrGatewayTimeout):
		return newError(KindGatewayTimeout, msg+": gateway timed out", err)
	case errors.Is(err, payment.ErrInvalidAmount):
		return newError(KindInvalidAmount, msg+": invalid amount", err)
	default:
		return newError(KindPaymentFailed, msg, err)
	}
}

func utcNow() time.Time { return time.Now().UTC() }

const dayLayout = "2006-01-02"
