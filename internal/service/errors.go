// Package service implements the booking saga and the payment ledger on
// top of the repository, payment and ledger packages.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.  Handlers map kinds to HTTP statuses.
type Kind string

const (
	KindInvalidRequest             Kind = "InvalidRequest"
	KindSubjectNotFound            Kind = "SubjectNotFound"
	KindReservationNotFound        Kind = "ReservationNotFound"
	KindForbidden                  Kind = "Forbidden"
	KindRoomUnavailable            Kind = "RoomUnavailable"
	KindInvalidAmount              Kind = "InvalidAmount"
	KindExceedsBalance             Kind = "ExceedsBalance"
	KindMethodNotAllowed           Kind = "MethodNotAllowed"
	KindGatewayDeclined            Kind = "GatewayDeclined"
	KindGatewayTimeout             Kind = "GatewayTimeout"
	KindPaymentFailed              Kind = "PaymentFailed"
	KindCommitConflictAfterPayment Kind = "CommitConflictAfterPayment"
	KindPersistenceFailure         Kind = "PersistenceFailure"
	KindCancelledReservation       Kind = "CancelledReservation"
	KindNotCancellable             Kind = "NotCancellable"
	KindInvalidTransition          Kind = "InvalidTransition"
	KindDuplicateInFlight          Kind = "DuplicateInFlight"
	KindCancelled                  Kind = "Cancelled"
)

// Error is the single error type returned across the service boundary.
// PaymentAuthorized tells the caller whether money moved before the
// failure; when it did, TransactionID carries the gateway reference.
type Error struct {
	Kind              Kind
	Message           string
	PaymentAuthorized bool
	TransactionID     string
	RollbackFailed    bool
	Err               error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind so callers can write
// errors.Is(err, &Error{Kind: KindRoomUnavailable}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NeedsReconciliation reports a failure after money moved.  Such cases
// are repaired by an operator, never by an automatic retry.
func (e *Error) NeedsReconciliation() bool {
	if !e.PaymentAuthorized {
		return false
	}
	return e.Kind == KindCommitConflictAfterPayment || e.Kind == KindPersistenceFailure
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
