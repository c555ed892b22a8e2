package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/ledger"
	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// AddPaymentRequest is a payment against an existing reservation.
type AddPaymentRequest struct {
	ReservationID  uint64
	Amount         int64
	Method         model.PaymentMethod
	Notes          string
	Actor          Actor
	Allowed        payment.Capability
	IdempotencyKey string
}

// PaymentResult is the recorded payment with the ledger after it.
type PaymentResult struct {
	Payment  *model.Payment
	Ledger   ledger.View
	Replayed bool
}

// Folio is a reservation with its payments and derived ledger view.
type Folio struct {
	Reservation *model.Reservation
	Payments    []model.Payment
	Ledger      ledger.View
}

// LedgerService appends payments and service charges to reservations.
// Every mutation runs under the reservation's row lock so the balance it
// validates against is the balance it writes against.
type LedgerService struct {
	store  repository.ReservationStore
	pay    Authorizer
	locks  payment.KeyLocker
	events EventPublisher
	log    *slog.Logger
	now    func() time.Time
}

func NewLedgerService(store repository.ReservationStore, pay Authorizer, locks payment.KeyLocker, events EventPublisher) *LedgerService {
	if locks == nil {
		locks = payment.NoopKeyLocker{}
	}
	return &LedgerService{
		store:  store,
		pay:    pay,
		locks:  locks,
		events: events,
		log:    logger.WithService("ledger"),
		now:    utcNow,
	}
}

// AddPayment validates amount against the current balance, authorizes it
// and appends it to the ledger.
func (s *LedgerService) AddPayment(ctx context.Context, req AddPaymentRequest) (*PaymentResult, error) {
	if req.Amount <= 0 {
		return nil, newError(KindInvalidAmount, "amount must be positive", ledger.ErrInvalidAmount)
	}
	if req.Method == "" {
		req.Method = model.MethodCard
	}
	if !req.Allowed.Allows(req.Method) {
		return nil, newError(KindMethodNotAllowed, "payment method "+string(req.Method)+" is not allowed for this caller", nil)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		if res, err := s.replay(ctx, key, req.ReservationID); res != nil || err != nil {
			return res, err
		}
		release, err := acquireKey(ctx, s.locks, s.log, "payment:"+key)
		if err != nil {
			return nil, err
		}
		defer release()
		// a holder that finished between the first lookup and our lock has
		// already recorded the payment
		if res, err := s.replay(ctx, key, req.ReservationID); res != nil || err != nil {
			return res, err
		}
	}

	// The transaction outlives the caller: once authorization starts, the
	// payment must be recorded even if the client goes away.
	runCtx := context.WithoutCancel(ctx)
	tx, err := s.store.Begin(runCtx)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "begin transaction failed", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, payments, err := s.lockFolio(ctx, tx, req.ReservationID, req.Actor)
	if err != nil {
		return nil, err
	}
	if res.Status == model.BookingCancelled {
		return nil, newError(KindCancelledReservation, "reservation is cancelled", nil)
	}
	view := ledger.NewView(res, payments)
	if err := ledger.ValidatePaymentAmount(req.Amount, view.Balance); err != nil {
		if errors.Is(err, ledger.ErrExceedsBalance) {
			return nil, newError(KindExceedsBalance, "amount exceeds the outstanding balance", err)
		}
		return nil, newError(KindInvalidAmount, "amount must be positive", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindCancelled, "payment abandoned before authorization", err)
	}

	// The row lock is held across authorization; the adapter's timeout
	// bounds how long other payers for this reservation wait.
	auth, err := s.pay.Authorize(runCtx, req.Method, req.Amount, gatewayKey("payment:", key))
	if err != nil {
		return nil, gatewayError(err, "payment authorization failed")
	}

	notes := strings.TrimSpace(req.Notes)
	p := paymentFromAuth(res.ID, auth, req.Actor.UserID, key, notes)
	if err := tx.CreatePayment(runCtx, p); err != nil {
		if key != "" && errors.Is(err, repository.ErrDuplicate) {
			committed = true
			_ = tx.Rollback()
			return s.replayDuplicate(runCtx, key, req.ReservationID, auth, err)
		}
		return nil, s.reconcile(runCtx, res.ID, key, auth, newError(KindPersistenceFailure, "record payment failed", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, s.reconcile(runCtx, res.ID, key, auth, newError(KindPersistenceFailure, "commit failed", err))
	}
	committed = true

	view = ledger.NewView(res, append(payments, *p))
	s.log.InfoContext(ctx, "payment recorded",
		"reservation_id", res.ID, "payment_id", p.ID, "amount", p.Amount, "method", p.Method,
		"balance", view.Balance, "status", view.Status)
	publishPayment(ctx, s.events, s.log, p, view, s.now())
	return &PaymentResult{Payment: p, Ledger: view}, nil
}

func (s *LedgerService) replay(ctx context.Context, key string, reservationID uint64) (*PaymentResult, error) {
	p, err := s.store.FindPaymentByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, newError(KindPersistenceFailure, "idempotency lookup failed", err)
	}
	if p.ReservationID != reservationID {
		return nil, newError(KindInvalidRequest, "idempotency key already used for another reservation", nil)
	}
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "load reservation failed", err)
	}
	payments, err := s.store.ListPayments(ctx, reservationID)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "load payments failed", err)
	}
	return &PaymentResult{Payment: p, Ledger: ledger.NewView(res, payments), Replayed: true}, nil
}

// replayDuplicate resolves an insert that lost to a concurrent request with
// the same key.  The gateway deduplicates on the key, so the stored payment
// normally carries the very authorization we just received.
func (s *LedgerService) replayDuplicate(ctx context.Context, key string, reservationID uint64, auth payment.Authorization, cause error) (*PaymentResult, error) {
	res, err := s.replay(ctx, key, reservationID)
	if err != nil {
		return nil, s.reconcile(ctx, reservationID, key, auth, newError(KindPersistenceFailure, "record payment failed", cause))
	}
	if res == nil || !sameTransaction(res.Payment, auth) {
		return nil, s.reconcile(ctx, reservationID, key, auth, newError(KindPersistenceFailure, "record payment failed", cause))
	}
	return res, nil
}

func sameTransaction(p *model.Payment, auth payment.Authorization) bool {
	if p.TransactionID == nil {
		return auth.TransactionID == ""
	}
	return *p.TransactionID == auth.TransactionID && p.Amount == auth.Amount
}

// reconcile marks se as a post-authorization failure and raises an alert.
func (s *LedgerService) reconcile(ctx context.Context, reservationID uint64, key string, auth payment.Authorization, se *Error) *Error {
	se.PaymentAuthorized = true
	se.TransactionID = auth.TransactionID
	s.log.ErrorContext(ctx, "payment requires manual reconciliation",
		"severity", "high", "kind", se.Kind, "reservation_id", reservationID,
		"payment_transaction_id", auth.TransactionID, "amount", auth.Amount, "method", auth.Method, "error", se.Err)
	publish(ctx, s.events, s.log, queue.ReconciliationRequiredQueue, queue.ReconciliationRequiredEvent{
		Reason:         string(se.Kind),
		ReservationID:  reservationID,
		Amount:         auth.Amount,
		Method:         string(auth.Method),
		TransactionID:  auth.TransactionID,
		IdempotencyKey: key,
		OccurredAt:     s.now().Format(time.RFC3339),
	})
	return se
}

// lockFolio locks the reservation row and loads its payments.
func (s *LedgerService) lockFolio(ctx context.Context, tx repository.BookingTx, id uint64, actor Actor) (*model.Reservation, []model.Payment, error) {
	res, err := tx.LockReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, newError(KindReservationNotFound, "reservation not found", err)
		}
		return nil, nil, newError(KindPersistenceFailure, "lock reservation failed", err)
	}
	if !actor.canAccess(res) {
		return nil, nil, newError(KindReservationNotFound, "reservation not found", nil)
	}
	payments, err := tx.ListPayments(ctx, id)
	if err != nil {
		return nil, nil, newError(KindPersistenceFailure, "load payments failed", err)
	}
	return res, payments, nil
}

// ListReservationPayments returns the folio of one reservation.
func (s *LedgerService) ListReservationPayments(ctx context.Context, id uint64, actor Actor) (*Folio, error) {
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindReservationNotFound, "reservation not found", err)
		}
		return nil, newError(KindPersistenceFailure, "load reservation failed", err)
	}
	if !actor.canAccess(res) {
		return nil, newError(KindReservationNotFound, "reservation not found", nil)
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "load payments failed", err)
	}
	view := ledger.NewView(res, payments)
	if view.Overpaid() {
		s.log.ErrorContext(ctx, "ledger integrity violation: negative balance",
			"severity", "high", "reservation_id", id, "total", view.TotalAmount, "paid", view.TotalPaid)
	}
	return &Folio{Reservation: res, Payments: payments, Ledger: view}, nil
}

// ServiceChargeRequest appends one line item.
type ServiceChargeRequest struct {
	ReservationID uint64
	Description   string
	Quantity      uint32
	UnitPrice     int64
	Actor         Actor
}

// AppendServiceCharge adds a line item to a reservation.  Line items are
// never edited.  The first line item absorbs any legacy scalar service
// charge so the total does not shrink.
func (s *LedgerService) AppendServiceCharge(ctx context.Context, req ServiceChargeRequest) (*Folio, error) {
	if !req.Actor.IsStaff() {
		return nil, newError(KindForbidden, "only staff may post service charges", nil)
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, newError(KindInvalidRequest, "description is required", nil)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.UnitPrice <= 0 {
		return nil, newError(KindInvalidAmount, "unit price must be positive", nil)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "begin transaction failed", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, payments, err := s.lockFolio(ctx, tx, req.ReservationID, req.Actor)
	if err != nil {
		return nil, err
	}
	if res.Status == model.BookingCancelled {
		return nil, newError(KindCancelledReservation, "reservation is cancelled", nil)
	}

	var added []model.ServiceDetail
	if len(res.ServiceDetails) == 0 && res.ServiceCharges > 0 {
		legacy := model.ServiceDetail{ReservationID: res.ID, Description: "service charges", Quantity: 1, UnitPrice: res.ServiceCharges}
		if err := tx.AppendServiceDetail(ctx, &legacy); err != nil {
			return nil, newError(KindPersistenceFailure, "carry over service charges failed", err)
		}
		added = append(added, legacy)
	}
	d := model.ServiceDetail{ReservationID: res.ID, Description: desc, Quantity: req.Quantity, UnitPrice: req.UnitPrice, CompletedAt: s.now()}
	if err := tx.AppendServiceDetail(ctx, &d); err != nil {
		return nil, newError(KindPersistenceFailure, "append service charge failed", err)
	}
	added = append(added, d)

	if err := tx.Commit(); err != nil {
		return nil, newError(KindPersistenceFailure, "commit failed", err)
	}
	committed = true

	res.ServiceDetails = append(res.ServiceDetails, added...)
	view := ledger.NewView(res, payments)
	s.log.InfoContext(ctx, "service charge appended", "reservation_id", res.ID, "price", d.Price, "total", view.TotalAmount)
	return &Folio{Reservation: res, Payments: payments, Ledger: view}, nil
}
