package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/ledger"
	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// BookingRequest describes one reservation attempt.  Exactly one of
// GuestID and Customer must be set.
type BookingRequest struct {
	Subject        model.Subject
	CheckIn        time.Time
	CheckOut       time.Time
	GuestID        *uint64
	Customer       *model.CustomerDetails
	Actor          Actor
	Allowed        payment.Capability
	IdempotencyKey string
}

// BookingResult is what a successful commit, or a replay of one, returns.
type BookingResult struct {
	Reservation *model.Reservation
	Payments    []model.Payment
	Ledger      ledger.View
	Replayed    bool
}

// BookingService runs the reservation saga.
type BookingService struct {
	store  repository.ReservationStore
	avail  *AvailabilityService
	pay    Authorizer
	locks  payment.KeyLocker
	events EventPublisher
	log    *slog.Logger
	now    func() time.Time
}

func NewBookingService(store repository.ReservationStore, pay Authorizer, locks payment.KeyLocker, events EventPublisher) *BookingService {
	if locks == nil {
		locks = payment.NoopKeyLocker{}
	}
	return &BookingService{
		store:  store,
		avail:  NewAvailabilityService(store),
		pay:    pay,
		locks:  locks,
		events: events,
		log:    logger.WithService("booking"),
		now:    utcNow,
	}
}

// Availability exposes the gate the saga uses for its first check.
func (s *BookingService) Availability() *AvailabilityService { return s.avail }

// Commit runs the whole saga for a client that already knows its payment
// choice.  A repeated idempotency key returns the stored result.
func (s *BookingService) Commit(ctx context.Context, req BookingRequest, choice model.PaymentChoice) (*BookingResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	req.IdempotencyKey = key
	if key != "" {
		if res, err := s.replay(ctx, key, req.Actor); res != nil || err != nil {
			return res, err
		}
		release, err := s.acquire(ctx, "reservation:"+key)
		if err != nil {
			return nil, err
		}
		defer release()
		if res, err := s.replay(ctx, key, req.Actor); res != nil || err != nil {
			return res, err
		}
	}

	saga, err := s.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return saga.Choose(ctx, choice)
}

func (s *BookingService) replay(ctx context.Context, key string, actor Actor) (*BookingResult, error) {
	res, err := s.store.FindReservationByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, newError(KindPersistenceFailure, "idempotency lookup failed", err)
	}
	if res.CreatedBy != actor.UserID {
		return nil, newError(KindInvalidRequest, "idempotency key already used by another caller", nil)
	}
	payments, err := s.store.ListPayments(ctx, res.ID)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "load payments failed", err)
	}
	s.log.InfoContext(ctx, "replayed reservation commit", "reservation_id", res.ID, "idempotency_key", key)
	return &BookingResult{Reservation: res, Payments: payments, Ledger: ledger.NewView(res, payments), Replayed: true}, nil
}

// acquire takes the single-flight lock for key.  A lock backend failure is
// logged and tolerated; the unique column still rejects a double insert.
func (s *BookingService) acquire(ctx context.Context, key string) (func(), error) {
	return acquireKey(ctx, s.locks, s.log, key)
}

func acquireKey(ctx context.Context, locks payment.KeyLocker, log *slog.Logger, key string) (func(), error) {
	ok, err := locks.Acquire(ctx, key)
	if err != nil {
		log.WarnContext(ctx, "idempotency lock unavailable", "key", key, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, newError(KindDuplicateInFlight, "a request with this idempotency key is already in progress", nil)
	}
	return func() {
		if err := locks.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("idempotency lock release failed", "key", key, "error", err)
		}
	}, nil
}

// SagaState names the step a booking saga is in.
type SagaState string

const (
	StateCheckingAvailability  SagaState = "CheckingAvailability"
	StateAwaitingPaymentChoice SagaState = "AwaitingPaymentChoice"
	StateAuthorizing           SagaState = "Authorizing"
	StateCommitting            SagaState = "Committing"
	StateDone                  SagaState = "Done"
	StateFailed                SagaState = "Failed"
	StateCancelled             SagaState = "Cancelled"
)

// Saga is one in-progress booking.  The caller may Cancel it only while it
// awaits a payment choice; once authorization starts it runs to a terminal
// state regardless of the caller's context.
type Saga struct {
	svc   *BookingService
	req   BookingRequest
	quote *Quote

	mu    sync.Mutex
	state SagaState
}

// Begin validates the request and performs the first, advisory
// availability check.
func (s *BookingService) Begin(ctx context.Context, req BookingRequest) (*Saga, error) {
	if err := validateParty(req); err != nil {
		return nil, err
	}
	g := &Saga{svc: s, req: req, state: StateCheckingAvailability}

	quote, err := s.avail.Quote(ctx, req.Subject, req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	if !quote.Available {
		return nil, newError(KindRoomUnavailable, string(req.Subject.Kind)+" is not available for the requested dates", nil)
	}
	g.quote = quote
	g.state = StateAwaitingPaymentChoice
	return g, nil
}

func validateParty(req BookingRequest) error {
	switch {
	case req.GuestID != nil && req.Customer != nil:
		return newError(KindInvalidRequest, "provide either a guest or customer details, not both", nil)
	case req.GuestID == nil && req.Customer == nil:
		return newError(KindInvalidRequest, "a guest or customer details are required", nil)
	case req.Customer != nil && strings.TrimSpace(req.Customer.Name) == "":
		return newError(KindInvalidRequest, "customer name is required", nil)
	case req.Customer != nil && !req.Actor.IsStaff():
		return newError(KindForbidden, "only staff may book for walk-in customers", nil)
	case req.GuestID != nil && !req.Actor.IsStaff() && *req.GuestID != req.Actor.UserID:
		return newError(KindForbidden, "guests may only book for themselves", nil)
	}
	return nil
}

// State returns the current step.
func (g *Saga) State() SagaState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Quote returns the priced availability result the saga was started with.
func (g *Saga) Quote() Quote { return *g.quote }

// TotalAmount is what a full payment would charge.
func (g *Saga) TotalAmount() int64 { return g.quote.RoomCharges }

// Cancel abandons the saga before any money moves.  Cancelling an already
// cancelled saga is a no-op.
func (g *Saga) Cancel() error {
	if !g.mu.TryLock() {
		// Choose holds the lock for the whole authorize/commit sequence.
		return newError(KindNotCancellable, "booking is already processing payment", nil)
	}
	defer g.mu.Unlock()
	switch g.state {
	case StateAwaitingPaymentChoice:
		g.state = StateCancelled
		return nil
	case StateCancelled:
		return nil
	default:
		return newError(KindNotCancellable, "booking cannot be cancelled in state "+string(g.state), nil)
	}
}

// Choose resolves the payment choice and drives the saga to Done or Failed.
func (g *Saga) Choose(ctx context.Context, choice model.PaymentChoice) (*BookingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateAwaitingPaymentChoice:
	case StateCancelled:
		return nil, newError(KindCancelled, "booking was cancelled", nil)
	default:
		return nil, newError(KindInvalidRequest, "payment choice already made", nil)
	}
	if err := ctx.Err(); err != nil {
		g.state = StateCancelled
		return nil, newError(KindCancelled, "booking abandoned before payment", err)
	}

	amount, method, err := resolveChoice(choice, g.TotalAmount(), g.req.Allowed)
	if err != nil {
		// validation failures leave the saga awaiting a corrected choice
		return nil, err
	}

	// From here on the caller can no longer stop the saga.
	runCtx := context.WithoutCancel(ctx)

	var auth *payment.Authorization
	if amount > 0 {
		g.state = StateAuthorizing
		a, err := g.svc.pay.Authorize(runCtx, method, amount, gatewayKey("reservation:", g.req.IdempotencyKey))
		if err != nil {
			g.state = StateFailed
			return nil, gatewayError(err, "payment authorization failed")
		}
		auth = &a
	}

	g.state = StateCommitting
	result, err := g.svc.commit(runCtx, g.req, g.quote, auth)
	if err != nil {
		g.state = StateFailed
		return nil, err
	}
	g.state = StateDone
	return result, nil
}

// resolveChoice turns a choice into a charge amount.  Skip charges nothing,
// full charges the total and partial must be strictly between the two.
func resolveChoice(choice model.PaymentChoice, total int64, allowed payment.Capability) (int64, model.PaymentMethod, error) {
	var amount int64
	switch choice.Type {
	case model.PayNothing:
		return 0, "", nil
	case model.PayFull:
		amount = total
		if err := ledger.ValidatePaymentAmount(amount, total); err != nil {
			return 0, "", newError(KindInvalidAmount, "nothing to pay for this stay", err)
		}
	case model.PayPartial:
		amount = choice.Amount
		if err := ledger.ValidatePaymentAmount(amount, total); err != nil {
			if errors.Is(err, ledger.ErrExceedsBalance) {
				return 0, "", newError(KindExceedsBalance, "partial amount exceeds the total", err)
			}
			return 0, "", newError(KindInvalidAmount, "partial amount must be positive", err)
		}
		if amount == total {
			return 0, "", newError(KindInvalidAmount, "partial amount must be less than the total; choose full instead", nil)
		}
	default:
		return 0, "", newError(KindInvalidRequest, "payment choice must be skip, partial or full", nil)
	}

	method := choice.Method
	if method == "" {
		method = model.MethodCard
	}
	if !allowed.Allows(method) {
		return 0, "", newError(KindMethodNotAllowed, "payment method "+string(method)+" is not allowed for this caller", nil)
	}
	return amount, method, nil
}

// commit re-checks availability under the unit's row lock and persists the
// reservation and its initial payment in one transaction.
func (s *BookingService) commit(ctx context.Context, req BookingRequest, quote *Quote, auth *payment.Authorization) (*BookingResult, error) {
	fail := func(kind Kind, msg string, err error, rollbackFailed bool) error {
		return s.failCommit(ctx, req, auth, newError(kind, msg, err), rollbackFailed)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fail(KindPersistenceFailure, "begin transaction failed", err, false)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.LockUnit(ctx, req.Subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.unavailable(ctx, req, auth, err)
		}
		return nil, fail(KindPersistenceFailure, "lock unit failed", err, false)
	}
	overlap, err := tx.HasOverlap(ctx, req.Subject, quote.CheckIn, quote.CheckOut)
	if err != nil {
		return nil, fail(KindPersistenceFailure, "availability re-check failed", err, false)
	}
	if overlap {
		return nil, s.unavailable(ctx, req, auth, nil)
	}

	res := &model.Reservation{
		Subject:     req.Subject,
		GuestID:     req.GuestID,
		Customer:    req.Customer,
		CheckIn:     quote.CheckIn,
		CheckOut:    quote.CheckOut,
		RoomCharges: quote.RoomCharges,
		Status:      model.BookingPending,
		CreatedBy:   req.Actor.UserID,
	}
	if auth != nil {
		res.Status = model.BookingConfirmed
	}
	if req.IdempotencyKey != "" {
		k := req.IdempotencyKey
		res.IdempotencyKey = &k
	}
	if err := tx.CreateReservation(ctx, res); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			se := newError(KindDuplicateInFlight, "a reservation with this idempotency key was just created", err)
			if auth != nil {
				se.PaymentAuthorized = true
				se.TransactionID = auth.TransactionID
			}
			return nil, se
		}
		return nil, fail(KindPersistenceFailure, "create reservation failed", err, false)
	}

	payments := []model.Payment{}
	if auth != nil {
		// the idempotency key lives on the reservation row
		p := paymentFromAuth(res.ID, *auth, req.Actor.UserID, "", "initial payment")
		if err := tx.CreatePayment(ctx, p); err != nil {
			committed = true // the rollback below replaces the deferred one
			rbErr := tx.Rollback()
			if rbErr != nil {
				s.log.ErrorContext(ctx, "rollback after payment insert failure failed", "severity", "high", "error", rbErr)
			}
			return nil, fail(KindPersistenceFailure, "record payment failed", err, rbErr != nil)
		}
		payments = append(payments, *p)
	}

	if err := tx.Commit(); err != nil {
		return nil, fail(KindPersistenceFailure, "commit failed", err, false)
	}
	committed = true

	view := ledger.NewView(res, payments)
	s.log.InfoContext(ctx, "reservation committed",
		"reservation_id", res.ID, "subject_kind", res.Subject.Kind, "subject_id", res.Subject.ID,
		"total", view.TotalAmount, "paid", view.TotalPaid, "status", res.Status)
	s.publishCommitted(ctx, res, view)
	for i := range payments {
		publishPayment(ctx, s.events, s.log, &payments[i], view, s.now())
	}
	return &BookingResult{Reservation: res, Payments: payments, Ledger: view}, nil
}

// unavailable reports a lost race.  Without a payment it is an ordinary
// RoomUnavailable; with one it needs an operator.
func (s *BookingService) unavailable(ctx context.Context, req BookingRequest, auth *payment.Authorization, cause error) error {
	if auth == nil {
		return newError(KindRoomUnavailable, string(req.Subject.Kind)+" was booked by someone else", cause)
	}
	return s.failCommit(ctx, req, auth,
		newError(KindCommitConflictAfterPayment, "payment taken but the room was booked by someone else", cause), false)
}

// failCommit stamps payment details on se and, when money moved, raises a
// reconciliation alert.
func (s *BookingService) failCommit(ctx context.Context, req BookingRequest, auth *payment.Authorization, se *Error, rollbackFailed bool) error {
	se.RollbackFailed = rollbackFailed
	if auth == nil {
		return se
	}
	se.PaymentAuthorized = true
	se.TransactionID = auth.TransactionID
	if !se.NeedsReconciliation() {
		return se
	}
	s.log.ErrorContext(ctx, "payment requires manual reconciliation",
		"severity", "high", "kind", se.Kind,
		"subject_kind", req.Subject.Kind, "room_id", req.Subject.ID,
		"payment_transaction_id", auth.TransactionID, "amount", auth.Amount, "method", auth.Method,
		"rollback_failed", rollbackFailed, "error", se.Err)
	publish(ctx, s.events, s.log, queue.ReconciliationRequiredQueue, queue.ReconciliationRequiredEvent{
		Reason:         string(se.Kind),
		SubjectKind:    string(req.Subject.Kind),
		SubjectID:      req.Subject.ID,
		Amount:         auth.Amount,
		Method:         string(auth.Method),
		TransactionID:  auth.TransactionID,
		IdempotencyKey: req.IdempotencyKey,
		RollbackFailed: rollbackFailed,
		OccurredAt:     s.now().Format(time.RFC3339),
	})
	return se
}

func (s *BookingService) publishCommitted(ctx context.Context, res *model.Reservation, view ledger.View) {
	ev := queue.ReservationCommittedEvent{
		ReservationID: res.ID,
		SubjectKind:   string(res.Subject.Kind),
		SubjectID:     res.Subject.ID,
		CheckIn:       res.CheckIn.Format(dayLayout),
		CheckOut:      res.CheckOut.Format(dayLayout),
		BookingStatus: string(res.Status),
		TotalAmount:   view.TotalAmount,
		TotalPaid:     view.TotalPaid,
		PaymentStatus: string(view.Status),
		CommittedAt:   s.now().Format(time.RFC3339),
	}
	if res.GuestID != nil {
		ev.GuestID = *res.GuestID
	}
	if res.Customer != nil {
		ev.CustomerName = res.Customer.Name
	}
	publish(ctx, s.events, s.log, queue.ReservationCommittedQueue, ev)
}

// gatewayKey scopes a client key to one operation so the gateway never
// matches a booking's authorization against a later payment.  An empty key
// stays empty and disables gateway deduplication.
func gatewayKey(scope, key string) string {
	if key == "" {
		return ""
	}
	return scope + key
}

func paymentFromAuth(reservationID uint64, auth payment.Authorization, recordedBy uint64, key, notes string) *model.Payment {
	p := &model.Payment{
		ReservationID: reservationID,
		Amount:        auth.Amount,
		Method:        auth.Method,
		Notes:         notes,
		PaymentDate:   auth.AuthorizedAt,
		RecordedBy:    recordedBy,
	}
	if auth.TransactionID != "" {
		t := auth.TransactionID
		p.TransactionID = &t
	}
	if key != "" {
		k := key
		p.IdempotencyKey = &k
	}
	return p
}
