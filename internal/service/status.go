package service

import (
	"context"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// transitions lists the allowed booking status moves.  Completed and
// cancelled are terminal.
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingPending:   {model.BookingConfirmed, model.BookingCancelled},
	model.BookingConfirmed: {model.BookingCheckedIn, model.BookingCancelled},
	model.BookingCheckedIn: {model.BookingCompleted, model.BookingCancelled},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to model.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateBookingStatus moves a reservation along its lifecycle.  Staff may
// make any allowed move; a guest may only cancel their own booking before
// check-in.
func (s *LedgerService) UpdateBookingStatus(ctx context.Context, id uint64, next model.BookingStatus, actor Actor) (*model.Reservation, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "begin transaction failed", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, _, err := s.lockFolio(ctx, tx, id, actor)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && !(next == model.BookingCancelled && res.Status != model.BookingCheckedIn) {
		return nil, newError(KindForbidden, "guests may only cancel a booking before check-in", nil)
	}
	if !CanTransition(res.Status, next) {
		return nil, newError(KindInvalidTransition, "cannot move booking from "+string(res.Status)+" to "+string(next), nil)
	}
	if err := tx.UpdateStatus(ctx, id, next); err != nil {
		return nil, newError(KindPersistenceFailure, "update status failed", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, newError(KindPersistenceFailure, "commit failed", err)
	}
	committed = true

	s.log.InfoContext(ctx, "booking status changed", "reservation_id", id, "from", res.Status, "to", next, "by", actor.UserID)
	res.Status = next
	return res, nil
}
