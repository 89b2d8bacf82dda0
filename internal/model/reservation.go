package model

import "time"

// Reservation status values.
const (
	ReservationHeld      = "held"
	ReservationConfirmed = "confirmed"
)

// Reservation pairs a user with a slot. A held reservation is a soft lock
// owned by the user's cart; confirmed is terminal and created only by
// checkout.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – owner of the reservation.
//  SlotID      – reserved slot; unique together with UserID.
//  CartID      – cart holding the reservation while held; nil once confirmed.
//  Status      – held or confirmed.
//  CreatedAt   – when the hold was created.
//  ConfirmedAt – when checkout confirmed it.
type Reservation struct {
	ID          uint64     // reservations.id
	UserID      uint64     // reservations.user_id
	SlotID      uint64     // reservations.slot_id
	CartID      *uint64    // reservations.cart_id (nullable)
	Status      string     // reservations.status
	CreatedAt   time.Time  // reservations.created_at
	ConfirmedAt *time.Time // reservations.confirmed_at (nullable)
}

// HeldReservation is a held reservation together with the slot placement
// needed to release it and recompute the affected pool.
type HeldReservation struct {
	Reservation
	DateID uint64
	Date   time.Time
	Window Window
}
