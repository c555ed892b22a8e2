package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// memStore is an in-memory ReservationStore.  Begin takes a store-wide
// lock that is held until Commit or Rollback, which stands in for the
// row locks the MySQL store takes.
type memStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	nextID       uint64
	units        map[model.Subject]model.Unit
	reservations map[uint64]model.Reservation
	payments     []model.Payment
	services     []model.ServiceDetail

	failCreatePayment error
	failCommit        error
	failRollback      error
}

func newMemStore(units ...model.Unit) *memStore {
	s := &memStore{
		units:        map[model.Subject]model.Unit{},
		reservations: map[uint64]model.Reservation{},
	}
	for _, u := range units {
		u.IsActive = true
		s.units[u.Subject] = u
	}
	return s
}

func (s *memStore) id() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *memStore) GetUnit(_ context.Context, subject model.Subject) (*model.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[subject]
	if !ok || !u.IsActive {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *memStore) HasOverlap(_ context.Context, subject model.Subject, checkIn, checkOut time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.Subject != subject || r.Status == model.BookingCancelled {
			continue
		}
		if !(!r.CheckOut.After(checkIn) || !r.CheckIn.Before(checkOut)) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *memStore) loadLocked(id uint64) (*model.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.ServiceDetails = nil
	for _, d := range s.services {
		if d.ReservationID == id {
			r.ServiceDetails = append(r.ServiceDetails, d)
		}
	}
	return &r, nil
}

func (s *memStore) FindReservationByKey(_ context.Context, key string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.reservations {
		if r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			return s.loadLocked(id)
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ListPayments(_ context.Context, reservationID uint64) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Payment{}
	for _, p := range s.payments {
		if p.ReservationID == reservationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) FindPaymentByKey(_ context.Context, key string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) Begin(context.Context) (repository.BookingTx, error) {
	s.txMu.Lock()
	return &memTx{s: s, statuses: map[uint64]model.BookingStatus{}}, nil
}

// seed stores a reservation directly and returns its id.
func (s *memStore) seed(r model.Reservation, payments ...model.Payment) uint64 {
	r.ID = s.id()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = r
	for _, p := range payments {
		s.nextID++
		p.ID = s.nextID
		p.ReservationID = r.ID
		s.payments = append(s.payments, p)
	}
	return r.ID
}

func (s *memStore) reservationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

func (s *memStore) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

// storePayment records p as if another request had just committed it.
func (s *memStore) storePayment(p model.Payment) {
	p.ID = s.id()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
}

type memTx struct {
	s            *memStore
	done         bool
	reservations []model.Reservation
	payments     []model.Payment
	services     []model.ServiceDetail
	statuses     map[uint64]model.BookingStatus
}

func (t *memTx) LockUnit(ctx context.Context, subject model.Subject) (*model.Unit, error) {
	return t.s.GetUnit(ctx, subject)
}

func (t *memTx) HasOverlap(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (bool, error) {
	return t.s.HasOverlap(ctx, subject, checkIn, checkOut)
}

func (t *memTx) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.s.GetReservation(ctx, id)
}

func (t *memTx) ListPayments(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	return t.s.ListPayments(ctx, reservationID)
}

func (t *memTx) CreateReservation(_ context.Context, res *model.Reservation) error {
	if res.IdempotencyKey != nil {
		if _, err := t.s.FindReservationByKey(context.Background(), *res.IdempotencyKey); err == nil {
			return repository.ErrDuplicate
		}
	}
	res.ID = t.s.id()
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	t.reservations = append(t.reservations, *res)
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, p *model.Payment) error {
	if t.s.failCreatePayment != nil {
		return t.s.failCreatePayment
	}
	if p.IdempotencyKey != nil {
		if _, err := t.s.FindPaymentByKey(context.Background(), *p.IdempotencyKey); err == nil {
			return repository.ErrDuplicate
		}
	}
	p.ID = t.s.id()
	t.payments = append(t.payments, *p)
	return nil
}

func (t *memTx) AppendServiceDetail(_ context.Context, d *model.ServiceDetail) error {
	d.Price = int64(d.Quantity) * d.UnitPrice
	d.ID = t.s.id()
	t.services = append(t.services, *d)
	return nil
}

func (t *memTx) UpdateStatus(_ context.Context, id uint64, status model.BookingStatus) error {
	t.statuses[id] = status
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	defer t.s.txMu.Unlock()
	if t.s.failCommit != nil {
		return t.s.failCommit
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, r := range t.reservations {
		t.s.reservations[r.ID] = r
	}
	t.s.payments = append(t.s.payments, t.payments...)
	t.s.services = append(t.s.services, t.services...)
	for id, st := range t.statuses {
		r := t.s.reservations[id]
		r.Status = st
		t.s.reservations[id] = r
	}
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.txMu.Unlock()
	return t.s.failRollback
}

// MockAuthorizer is a testify mock for Authorizer.
type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(ctx context.Context, method model.PaymentMethod, amount int64, key string) (payment.Authorization, error) {
	args := m.Called(ctx, method, amount, key)
	return args.Get(0).(payment.Authorization), args.Error(1)
}

// MockPublisher is a testify mock for EventPublisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

// MockKeyLocker is a testify mock for payment.KeyLocker.
type MockKeyLocker struct {
	mock.Mock
}

func (m *MockKeyLocker) Acquire(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockKeyLocker) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// recordingPublisher keeps every event routing key it sees.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	evs  []any
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.evs = append(p.evs, event)
	return nil
}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == routingKey {
			n++
		}
	}
	return n
}
