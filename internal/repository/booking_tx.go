package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// bookingTx implements BookingTx over a *sql.Tx.
type bookingTx struct {
	tx *sql.Tx
}

func (b *bookingTx) LockUnit(ctx context.Context, subject model.Subject) (*model.Unit, error) {
	return getUnit(ctx, b.tx, subject, true)
}

func (b *bookingTx) HasOverlap(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (bool, error) {
	return hasOverlap(ctx, b.tx, subject, checkIn, checkOut)
}

// LockReservation reads and locks one reservation row.  Service details are
// attached so the caller can compute the total under the lock.
func (b *bookingTx) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return loadReservation(ctx, b.tx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ? FOR UPDATE", id)
}

func (b *bookingTx) ListPayments(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	return listPayments(ctx, b.tx, reservationID)
}

// CreateReservation inserts res and fills in its id and timestamps.  A
// reused idempotency key is reported as ErrDuplicate.
func (b *bookingTx) CreateReservation(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations
	    (subject_kind, subject_id, guest_id, customer_name, customer_phone, customer_email,
	     check_in, check_out, room_charges, service_charges, booking_status, idempotency_key, created_by)
	    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var name, phone, email sql.NullString
	if res.Customer != nil {
		name = sql.NullString{String: res.Customer.Name, Valid: true}
		phone = sql.NullString{String: res.Customer.Phone, Valid: res.Customer.Phone != ""}
		email = sql.NullString{String: res.Customer.Email, Valid: res.Customer.Email != ""}
	}
	result, err := b.tx.ExecContext(ctx, q,
		string(res.Subject.Kind), res.Subject.ID, res.GuestID, name, phone, email,
		res.CheckIn, res.CheckOut, res.RoomCharges, res.ServiceCharges, string(res.Status),
		res.IdempotencyKey, res.CreatedBy)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)

	// Read back the defaults the database filled in.
	return b.tx.QueryRowContext(ctx, "SELECT created_at, updated_at FROM reservations WHERE id = ?", res.ID).
		Scan(&res.CreatedAt, &res.UpdatedAt)
}

// CreatePayment appends a ledger entry.
func (b *bookingTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	const q = `INSERT INTO payments
	    (reservation_id, amount, method, transaction_id, notes, payment_date, idempotency_key, recorded_by)
	    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now().UTC()
	}
	result, err := b.tx.ExecContext(ctx, q,
		p.ReservationID, p.Amount, string(p.Method), p.TransactionID, p.Notes, p.PaymentDate, p.IdempotencyKey, p.RecordedBy)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// AppendServiceDetail adds a line item.  Price is derived from quantity and
// unit price.
func (b *bookingTx) AppendServiceDetail(ctx context.Context, d *model.ServiceDetail) error {
	const q = `INSERT INTO reservation_services
	    (reservation_id, description, quantity, unit_price, price, completed_at)
	    VALUES (?, ?, ?, ?, ?, ?)`
	d.Price = int64(d.Quantity) * d.UnitPrice
	if d.CompletedAt.IsZero() {
		d.CompletedAt = time.Now().UTC()
	}
	result, err := b.tx.ExecContext(ctx, q, d.ReservationID, d.Description, d.Quantity, d.UnitPrice, d.Price, d.CompletedAt)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

func (b *bookingTx) UpdateStatus(ctx context.Context, id uint64, status model.BookingStatus) error {
	result, err := b.tx.ExecContext(ctx, "UPDATE reservations SET booking_status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *bookingTx) Commit() error { return b.tx.Commit() }

// Rollback is safe to call after Commit.
func (b *bookingTx) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
