package model

import "time"

// PaymentMethod is the instrument used for a payment.
type PaymentMethod string

const (
	MethodCard PaymentMethod = "card"
	MethodCash PaymentMethod = "cash"
)

// Payment is an immutable ledger entry against a reservation.  Payments are
// never updated or deleted; corrections are new entries.
//
// Fields:
//  ID             – primary key identifier.
//  ReservationID  – reservation being paid.
//  Amount         – positive amount in minor currency units.
//  Method         – card or cash.
//  TransactionID  – gateway reference, set for card payments only.
//  Notes          – free text from the operator.
//  PaymentDate    – when the payment was recorded.
//  IdempotencyKey – client key used to dedupe retried payments.
//  RecordedBy     – user who recorded the payment.
type Payment struct {
	ID             uint64        // payments.id
	ReservationID  uint64        // payments.reservation_id
	Amount         int64         // payments.amount
	Method         PaymentMethod // payments.method
	TransactionID  *string       // payments.transaction_id (nullable)
	Notes          string        // payments.notes
	PaymentDate    time.Time     // payments.payment_date
	IdempotencyKey *string       // payments.idempotency_key (nullable, unique)
	RecordedBy     uint64        // payments.recorded_by
}

// PaymentChoiceType is the guest's decision for paying at booking time.
type PaymentChoiceType string

const (
	PayNothing PaymentChoiceType = "skip"
	PayPartial PaymentChoiceType = "partial"
	PayFull    PaymentChoiceType = "full"
)

// PaymentChoice captures the choice made while a booking awaits payment.
// Amount is ignored for skip and full; full always pays the computed total.
type PaymentChoice struct {
	Type   PaymentChoiceType
	Amount int64
	Method PaymentMethod
}
