package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/ledger"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Quote is the outcome of an availability check priced for the stay.
type Quote struct {
	Unit        model.Unit
	CheckIn     time.Time
	CheckOut    time.Time
	Nights      int
	RoomCharges int64
	Available   bool
}

// AvailabilityService answers whether a subject is free for a stay.  Its
// answers are advisory; the commit step re-checks under a row lock.
type AvailabilityService struct {
	store repository.ReservationStore
}

func NewAvailabilityService(store repository.ReservationStore) *AvailabilityService {
	return &AvailabilityService{store: store}
}

// normalizeStay truncates both dates to UTC days and rejects empty or
// inverted intervals.
func normalizeStay(subject model.Subject, checkIn, checkOut time.Time) (time.Time, time.Time, error) {
	if !subject.Valid() {
		return time.Time{}, time.Time{}, newError(KindInvalidRequest, "subject_kind must be room or facility with a positive id", nil)
	}
	in, out := model.TruncateDay(checkIn), model.TruncateDay(checkOut)
	if !in.Before(out) {
		return time.Time{}, time.Time{}, newError(KindInvalidRequest, "check_out must be at least one day after check_in", nil)
	}
	return in, out, nil
}

// Check reports whether no active reservation overlaps [checkIn, checkOut).
func (a *AvailabilityService) Check(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (bool, error) {
	in, out, err := normalizeStay(subject, checkIn, checkOut)
	if err != nil {
		return false, err
	}
	overlap, err := a.store.HasOverlap(ctx, subject, in, out)
	if err != nil {
		return false, newError(KindPersistenceFailure, "availability lookup failed", err)
	}
	return !overlap, nil
}

// Quote checks availability and prices the stay at the current rate.
func (a *AvailabilityService) Quote(ctx context.Context, subject model.Subject, checkIn, checkOut time.Time) (*Quote, error) {
	in, out, err := normalizeStay(subject, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	unit, err := a.store.GetUnit(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindSubjectNotFound, string(subject.Kind)+" not found", err)
		}
		return nil, newError(KindPersistenceFailure, "unit lookup failed", err)
	}
	available, err := a.Check(ctx, subject, in, out)
	if err != nil {
		return nil, err
	}
	nights := model.Nights(in, out)
	return &Quote{
		Unit:        *unit,
		CheckIn:     in,
		CheckOut:    out,
		Nights:      nights,
		RoomCharges: ledger.RoomCharges(nights, unit.NightlyRate),
		Available:   available,
	}, nil
}
