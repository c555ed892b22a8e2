package model

import "time"

// BookingStatus tracks the stay lifecycle of a reservation.  It is
// orthogonal to the payment status, which is always derived from the
// ledger and never stored.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCheckedIn BookingStatus = "checkedin"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// SubjectKind distinguishes the two bookable inventories.
type SubjectKind string

const (
	SubjectRoom     SubjectKind = "room"
	SubjectFacility SubjectKind = "facility"
)

// Subject identifies a bookable room or facility.
type Subject struct {
	Kind SubjectKind
	ID   uint64
}

// Valid reports whether the subject names a known inventory and a non-zero id.
func (s Subject) Valid() bool {
	return (s.Kind == SubjectRoom || s.Kind == SubjectFacility) && s.ID > 0
}

// CustomerDetails identifies a walk-in customer who has no account.
type CustomerDetails struct {
	Name  string
	Phone string
	Email string
}

// ServiceDetail is a chargeable line item attached to a reservation after
// booking (room service, minibar, spa).  Line items are append-only.
//
// Fields:
//  ID            – primary key identifier.
//  ReservationID – owning reservation.
//  Description   – free text shown on the folio.
//  Quantity      – number of units.
//  UnitPrice     – price per unit in minor currency units.
//  Price         – Quantity × UnitPrice, stored so the folio never re-derives it.
//  CompletedAt   – when the service was rendered.
type ServiceDetail struct {
	ID            uint64    // reservation_services.id
	ReservationID uint64    // reservation_services.reservation_id
	Description   string    // reservation_services.description
	Quantity      uint32    // reservation_services.quantity
	UnitPrice     int64     // reservation_services.unit_price
	Price         int64     // reservation_services.price
	CompletedAt   time.Time // reservation_services.completed_at
}

// Reservation is a confirmed allocation of a room or facility to a guest
// for a half-open date interval [CheckIn, CheckOut).
//
// Fields:
//  ID              – primary key identifier.
//  Subject         – the room or facility held.
//  GuestID         – registered guest (nil for walk-ins).
//  Customer        – walk-in contact details (nil for registered guests).
//  CheckIn         – first night, truncated to UTC midnight.
//  CheckOut        – departure day, truncated to UTC midnight.
//  RoomCharges     – nights × nightly rate, frozen at creation.
//  ServiceCharges  – legacy scalar used only when no line items exist.
//  ServiceDetails  – line items; when present they replace ServiceCharges.
//  Status          – booking lifecycle status.
//  IdempotencyKey  – client key used to dedupe retried commits.
//  CreatedBy       – user who performed the commit.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Reservation struct {
	ID             uint64           // reservations.id
	Subject        Subject          // reservations.subject_kind / subject_id
	GuestID        *uint64          // reservations.guest_id (nullable)
	Customer       *CustomerDetails // reservations.customer_* (nullable)
	CheckIn        time.Time        // reservations.check_in
	CheckOut       time.Time        // reservations.check_out
	RoomCharges    int64            // reservations.room_charges
	ServiceCharges int64            // reservations.service_charges
	ServiceDetails []ServiceDetail  // reservation_services rows
	Status         BookingStatus    // reservations.booking_status
	IdempotencyKey *string          // reservations.idempotency_key (nullable, unique)
	CreatedBy      uint64           // reservations.created_by
	CreatedAt      time.Time        // reservations.created_at
	UpdatedAt      time.Time        // reservations.updated_at
}

// Nights returns the number of nights covered by the reservation.
func (r *Reservation) Nights() int {
	return Nights(r.CheckIn, r.CheckOut)
}

// TruncateDay normalizes t to midnight UTC.  All stay dates are compared
// at day granularity.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Nights counts whole days between two dates after truncation.  It returns
// zero or a negative value when checkOut is not after checkIn.
func Nights(checkIn, checkOut time.Time) int {
	in, out := TruncateDay(checkIn), TruncateDay(checkOut)
	return int(out.Sub(in).Hours() / 24)
}
