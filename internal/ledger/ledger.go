// Package ledger holds the pure arithmetic of a reservation folio: what is
// owed, what has been paid and what a new payment may be.  Nothing here
// touches storage; callers pass in the rows they have already locked.
package ledger

import (
	"errors"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

var (
	ErrInvalidAmount  = errors.New("payment amount must be positive")
	ErrExceedsBalance = errors.New("payment amount exceeds outstanding balance")
)

// Status is the derived payment status of a reservation.
type Status string

const (
	StatusUnpaid        Status = "unpaid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
)

// ChargeableItem is anything that adds to a folio total.
type ChargeableItem interface {
	Price() int64
}

// RoomCharge is the frozen nights × rate charge of a reservation.
type RoomCharge int64

func (c RoomCharge) Price() int64 { return int64(c) }

// ServiceLineItem adapts a stored service detail to ChargeableItem.
type ServiceLineItem struct {
	Detail model.ServiceDetail
}

func (s ServiceLineItem) Price() int64 { return s.Detail.Price }

// FlatServiceCharge is the legacy scalar service charge.
type FlatServiceCharge int64

func (c FlatServiceCharge) Price() int64 { return int64(c) }

// RoomCharges prices a stay.  Non-positive night counts price to zero.
func RoomCharges(nights int, nightlyRate int64) int64 {
	if nights <= 0 {
		return 0
	}
	return int64(nights) * nightlyRate
}

// Items lists the chargeable items of a reservation.  Line items, when
// present, replace the scalar service charge so it is never counted twice.
func Items(roomCharges, serviceCharges int64, details []model.ServiceDetail) []ChargeableItem {
	items := make([]ChargeableItem, 0, len(details)+1)
	items = append(items, RoomCharge(roomCharges))
	if len(details) > 0 {
		for _, d := range details {
			items = append(items, ServiceLineItem{Detail: d})
		}
		return items
	}
	return append(items, FlatServiceCharge(serviceCharges))
}

// Sum adds the prices of items.
func Sum(items []ChargeableItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Price()
	}
	return total
}

// ComputeTotal returns roomCharges plus either the sum of line items or the
// scalar service charge.
func ComputeTotal(roomCharges, serviceCharges int64, details []model.ServiceDetail) int64 {
	return Sum(Items(roomCharges, serviceCharges, details))
}

// TotalPaid sums recorded payments.
func TotalPaid(payments []model.Payment) int64 {
	var paid int64
	for _, p := range payments {
		paid += p.Amount
	}
	return paid
}

// ComputeBalance returns total minus paid.  The result is not clamped; a
// negative balance is an integrity signal the caller must see.
func ComputeBalance(total, paid int64) int64 {
	return total - paid
}

// ComputeStatus derives the payment status.  Nothing paid is unpaid even
// when the total is zero.
func ComputeStatus(total, paid int64) Status {
	switch {
	case paid == 0:
		return StatusUnpaid
	case ComputeBalance(total, paid) <= 0:
		return StatusPaid
	default:
		return StatusPartiallyPaid
	}
}

// ValidatePaymentAmount checks a proposed payment against the outstanding
// balance.  Paying exactly the balance is allowed.
func ValidatePaymentAmount(amount, balance int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > balance {
		return ErrExceedsBalance
	}
	return nil
}
