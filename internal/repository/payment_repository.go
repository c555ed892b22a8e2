package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// PaymentRepo reads the payments ledger.  Payments are inserted only
// inside a BookingTx and never updated or deleted.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, reservation_id, amount, method, transaction_id, notes, payment_date, idempotency_key, recorded_by`

// ListByReservation returns payments for a reservation in recording order.
func (r *PaymentRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	return listPayments(ctx, r.db, reservationID)
}

// FindByIdempotencyKey returns the payment recorded under key, or ErrNotFound.
func (r *PaymentRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE idempotency_key = ?", key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func listPayments(ctx context.Context, q querier, reservationID uint64) ([]model.Payment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE reservation_id = ? ORDER BY payment_date, id", reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPayment(s rowScanner) (*model.Payment, error) {
	var (
		p      model.Payment
		method string
		txn    sql.NullString
		notes  sql.NullString
		key    sql.NullString
	)
	if err := s.Scan(&p.ID, &p.ReservationID, &p.Amount, &method, &txn, &notes, &p.PaymentDate, &key, &p.RecordedBy); err != nil {
		return nil, err
	}
	p.Method = model.PaymentMethod(method)
	p.Notes = notes.String
	if txn.Valid {
		t := txn.String
		p.TransactionID = &t
	}
	if key.Valid {
		k := key.String
		p.IdempotencyKey = &k
	}
	return &p, nil
}
