package handler

import (
	"time"

	"github.com/iliyamo/hotel-reservation/internal/ledger"
	"github.com/iliyamo/hotel-reservation/internal/model"
)

type customerDTO struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type serviceDTO struct {
	ID          uint64    `json:"id"`
	Description string    `json:"description"`
	Quantity    uint32    `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	Price       int64     `json:"price"`
	CompletedAt time.Time `json:"completed_at"`
}

type reservationDTO struct {
	ID             uint64       `json:"id"`
	SubjectKind    string       `json:"subject_kind"`
	SubjectID      uint64       `json:"subject_id"`
	GuestID        *uint64      `json:"guest_id,omitempty"`
	Customer       *customerDTO `json:"customer_details,omitempty"`
	CheckIn        string       `json:"check_in"`
	CheckOut       string       `json:"check_out"`
	Nights         int          `json:"nights"`
	RoomCharges    int64        `json:"room_charges"`
	ServiceCharges int64        `json:"service_charges"`
	Services       []serviceDTO `json:"service_details"`
	Status         string       `json:"booking_status"`
	CreatedAt      time.Time    `json:"created_at"`
}

type paymentDTO struct {
	ID            uint64    `json:"id"`
	ReservationID uint64    `json:"reservation_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"payment_method"`
	TransactionID *string   `json:"transaction_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	PaymentDate   time.Time `json:"payment_date"`
}

// ledgerDTO clamps the balance for display; Overpaid flags the integrity
// violation the clamp would otherwise hide.
type ledgerDTO struct {
	TotalAmount   int64  `json:"total_amount"`
	TotalPaid     int64  `json:"total_paid"`
	Balance       int64  `json:"balance"`
	PaymentStatus string `json:"payment_status"`
	Overpaid      bool   `json:"overpaid,omitempty"`
}

func toReservationDTO(r *model.Reservation) reservationDTO {
	out := reservationDTO{
		ID:             r.ID,
		SubjectKind:    string(r.Subject.Kind),
		SubjectID:      r.Subject.ID,
		GuestID:        r.GuestID,
		CheckIn:        r.CheckIn.Format(dayLayout),
		CheckOut:       r.CheckOut.Format(dayLayout),
		Nights:         r.Nights(),
		RoomCharges:    r.RoomCharges,
		ServiceCharges: r.ServiceCharges,
		Services:       make([]serviceDTO, 0, len(r.ServiceDetails)),
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
	}
	if r.Customer != nil {
		out.Customer = &customerDTO{Name: r.Customer.Name, Phone: r.Customer.Phone, Email: r.Customer.Email}
	}
	for _, d := range r.ServiceDetails {
		out.Services = append(out.Services, serviceDTO{
			ID: d.ID, Description: d.Description, Quantity: d.Quantity,
			UnitPrice: d.UnitPrice, Price: d.Price, CompletedAt: d.CompletedAt,
		})
	}
	return out
}

func toPaymentDTO(p model.Payment) paymentDTO {
	return paymentDTO{
		ID:            p.ID,
		ReservationID: p.ReservationID,
		Amount:        p.Amount,
		Method:        string(p.Method),
		TransactionID: p.TransactionID,
		Notes:         p.Notes,
		PaymentDate:   p.PaymentDate,
	}
}

func toPaymentDTOs(ps []model.Payment) []paymentDTO {
	out := make([]paymentDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPaymentDTO(p))
	}
	return out
}

func toLedgerDTO(v ledger.View) ledgerDTO {
	return ledgerDTO{
		TotalAmount:   v.TotalAmount,
		TotalPaid:     v.TotalPaid,
		Balance:       v.DisplayBalance(),
		PaymentStatus: string(v.Status),
		Overpaid:      v.Overpaid(),
	}
}
