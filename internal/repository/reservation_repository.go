package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// ReservationRepo reads reservations and their service line items.  Writes
// happen inside a BookingTx.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, subject_kind, subject_id, guest_id, customer_name, customer_phone, customer_email,
	check_in, check_out, room_charges, service_charges, booking_status, idempotency_key, created_by, created_at, updated_at`

// GetByID loads a reservation with its service details attached.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return loadReservation(ctx, r.db, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
}

// FindByIdempotencyKey returns the reservation created under key, or
// ErrNotFound.
func (r *ReservationRepo) FindByIdempotencyKey(ctx context.Context, key string) (*model.Reservation, error) {
	return loadReservation(ctx, r.db, "SELECT "+reservationColumns+" FROM reservations WHERE idempotency_key = ?", key)
}

// ListByGuest returns a guest's reservations, most recent check-in first.
// Service details are not attached.
func (r *ReservationRepo) ListByGuest(ctx context.Context, guestID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE guest_id = ? ORDER BY check_in DESC, id DESC", guestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// OverpaidReservation is one row of the ledger audit.
type OverpaidReservation struct {
	ReservationID uint64
	TotalAmount   int64
	TotalPaid     int64
}

// ListOverpaid finds reservations whose payments exceed their total.  The
// total mirrors ledger.ComputeTotal: line items replace the scalar service
// charge whenever any exist.
func (r *ReservationRepo) ListOverpaid(ctx context.Context) ([]OverpaidReservation, error) {
	const q = `SELECT r.id,
	       r.room_charges + COALESCE(s.items, r.service_charges) AS total,
	       p.paid
	  FROM reservations r
	  JOIN (SELECT reservation_id, SUM(amount) AS paid FROM payments GROUP BY reservation_id) p
	    ON p.reservation_id = r.id
	  LEFT JOIN (SELECT reservation_id, SUM(price) AS items FROM reservation_services GROUP BY reservation_id) s
	    ON s.reservation_id = r.id
	 WHERE p.paid > r.room_charges + COALESCE(s.items, r.service_charges)
	 ORDER BY r.id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverpaidReservation
	for rows.Next() {
		var o OverpaidReservation
		if err := rows.Scan(&o.ReservationID, &o.TotalAmount, &o.TotalPaid); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// hasOverlap reports whether any non-cancelled reservation for subject
// intersects [checkIn, checkOut).  Touching intervals do not overlap.
func hasOverlap(ctx context.Context, q querier, subject model.Subject, checkIn, checkOut time.Time) (bool, error) {
	const query = `SELECT EXISTS (
	    SELECT 1 FROM reservations
	     WHERE subject_kind = ? AND subject_id = ?
	       AND booking_status <> 'cancelled'
	       AND NOT (check_out <= ? OR check_in >= ?)
	)`
	var exists bool
	err := q.QueryRowContext(ctx, query, string(subject.Kind), subject.ID, checkIn, checkOut).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res                       model.Reservation
		kind, status              string
		guestID                   sql.NullInt64
		custName, custPhone, mail sql.NullString
		key                       sql.NullString
	)
	if err := s.Scan(&res.ID, &kind, &res.Subject.ID, &guestID, &custName, &custPhone, &mail,
		&res.CheckIn, &res.CheckOut, &res.RoomCharges, &res.ServiceCharges, &status, &key,
		&res.CreatedBy, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.Subject.Kind = model.SubjectKind(kind)
	res.Status = model.BookingStatus(status)
	if guestID.Valid {
		g := uint64(guestID.Int64)
		res.GuestID = &g
	}
	if custName.Valid {
		res.Customer = &model.CustomerDetails{Name: custName.String, Phone: custPhone.String, Email: mail.String}
	}
	if key.Valid {
		k := key.String
		res.IdempotencyKey = &k
	}
	return &res, nil
}

func loadReservation(ctx context.Context, q querier, query string, args ...any) (*model.Reservation, error) {
	res, err := scanReservation(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	details, err := listServiceDetails(ctx, q, res.ID)
	if err != nil {
		return nil, err
	}
	res.ServiceDetails = details
	return res, nil
}

func listServiceDetails(ctx context.Context, q querier, reservationID uint64) ([]model.ServiceDetail, error) {
	const query = `SELECT id, reservation_id, description, quantity, unit_price, price, completed_at
	  FROM reservation_services WHERE reservation_id = ? ORDER BY id`
	rows, err := q.QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ServiceDetail
	for rows.Next() {
		var d model.ServiceDetail
		if err := rows.Scan(&d.ID, &d.ReservationID, &d.Description, &d.Quantity, &d.UnitPrice, &d.Price, &d.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
