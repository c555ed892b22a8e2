package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReservationStore is the read side plus the transaction factory used by
// the booking and ledger services.
type ReservationStore interface {
	GetUnit(ctx context.Context, subject model.Subject) (*model.Unit, error)
	HasOverlap(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (bool, error)
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	FindReservationByKey(ctx context.Context, key string) (*model.Reservation, error)
	ListPayments(ctx context.Context, reservationID uint64) ([]model.Payment, error)
	FindPaymentByKey(ctx context.Context, key string) (*model.Payment, error)
	Begin(ctx context.Context) (BookingTx, error)
}

// BookingTx is one unit of work.  LockUnit and LockReservation take row
// locks that are held until Commit or Rollback, which is what serializes
// concurrent commits for the same room and concurrent payments for the
// same reservation.
type BookingTx interface {
	LockUnit(ctx context.Context, subject model.Subject) (*model.Unit, error)
	HasOverlap(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (bool, error)
	LockReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	ListPayments(ctx context.Context, reservationID uint64) ([]model.Payment, error)
	CreateReservation(ctx context.Context, res *model.Reservation) error
	CreatePayment(ctx context.Context, p *model.Payment) error
	AppendServiceDetail(ctx context.Context, d *model.ServiceDetail) error
	UpdateStatus(ctx context.Context, id uint64, status model.BookingStatus) error
	Commit() error
	Rollback() error
}

// Store bundles the MySQL repositories behind ReservationStore.
type Store struct {
	db           *sql.DB
	Units        *UnitRepo
	Reservations *ReservationRepo
	Payments     *PaymentRepo
}

// NewStore wires all repositories to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		Units:        NewUnitRepo(db),
		Reservations: NewReservationRepo(db),
		Payments:     NewPaymentRepo(db),
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) GetUnit(ctx context.Context, subject model.Subject) (*model.Unit, error) {
	return s.Units.Get(ctx, subject)
}

func (s *Store) HasOverlap(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (bool, error) {
	return hasOverlap(ctx, s.db, subject, checkIn, checkOut)
}

func (s *Store) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.Reservations.GetByID(ctx, id)
}

func (s *Store) FindReservationByKey(ctx context.Context, key string) (*model.Reservation, error) {
	return s.Reservations.FindByIdempotencyKey(ctx, key)
}

func (s *Store) ListPayments(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	return s.Payments.ListByReservation(ctx, reservationID)
}

func (s *Store) FindPaymentByKey(ctx context.Context, key string) (*model.Payment, error) {
	return s.Payments.FindByIdempotencyKey(ctx, key)
}

// Begin opens a transaction at the default isolation level.  Correctness
// relies on the explicit FOR UPDATE locks, not on the isolation level.
func (s *Store) Begin(ctx context.Context) (BookingTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &bookingTx{tx: tx}, nil
}
