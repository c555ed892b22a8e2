package model

import "time"

// Unit is a bookable room or facility together with its nightly rate.
// Rooms and facilities live in separate tables but share this shape.
type Unit struct {
	Subject     Subject
	Name        string
	NightlyRate int64 // minor units per night
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
