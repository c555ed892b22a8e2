package ledger

import "github.com/iliyamo/hotel-reservation/internal/model"

// View is the derived financial summary of one reservation.
type View struct {
	TotalAmount int64
	TotalPaid   int64
	Balance     int64
	Status      Status
}

// NewView derives a View from a reservation and its payments.
func NewView(res *model.Reservation, payments []model.Payment) View {
	total := ComputeTotal(res.RoomCharges, res.ServiceCharges, res.ServiceDetails)
	paid := TotalPaid(payments)
	return View{
		TotalAmount: total,
		TotalPaid:   paid,
		Balance:     ComputeBalance(total, paid),
		Status:      ComputeStatus(total, paid),
	}
}

// Overpaid reports an integrity violation: more was collected than owed.
func (v View) Overpaid() bool { return v.Balance < 0 }

// DisplayBalance is the balance clamped at zero for presentation.
func (v View) DisplayBalance() int64 {
	if v.Balance < 0 {
		return 0
	}
	return v.Balance
}
