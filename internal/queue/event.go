// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the background consumer.
package queue

// Queue names double as routing keys on the default exchange.
const (
	ReservationCommittedQueue   = "reservation.committed"
	PaymentRecordedQueue        = "payment.recorded"
	ReconciliationRequiredQueue = "reconciliation.required"
)

// ReservationCommittedEvent is published after a reservation and its
// optional initial payment are durably stored.
type ReservationCommittedEvent struct {
	ReservationID uint64 `json:"reservation_id"`
	SubjectKind   string `json:"subject_kind"`
	SubjectID     uint64 `json:"subject_id"`
	GuestID       uint64 `json:"guest_id,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	BookingStatus string `json:"booking_status"`
	TotalAmount   int64  `json:"total_amount"`
	TotalPaid     int64  `json:"total_paid"`
	PaymentStatus string `json:"payment_status"`
	CommittedAt   string `json:"committed_at"`
}

// PaymentRecordedEvent is published for every new ledger entry.
type PaymentRecordedEvent struct {
	PaymentID     uint64 `json:"payment_id"`
	ReservationID uint64 `json:"reservation_id"`
	Amount        int64  `json:"amount"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id,omitempty"`
	Balance       int64  `json:"balance"`
	PaymentStatus string `json:"payment_status"`
	RecordedAt    string `json:"recorded_at"`
}

// ReconciliationRequiredEvent flags money that moved without a matching
// reservation or ledger entry.  An operator must refund or re-book.
type ReconciliationRequiredEvent struct {
	Reason         string `json:"reason"`
	SubjectKind    string `json:"subject_kind,omitempty"`
	SubjectID      uint64 `json:"subject_id,omitempty"`
	ReservationID  uint64 `json:"reservation_id,omitempty"`
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
	TransactionID  string `json:"transaction_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	RollbackFailed bool   `json:"rollback_failed"`
	OccurredAt     string `json:"occurred_at"`
}
