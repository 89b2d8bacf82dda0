package model

import "time"

// Cart is the single live cart of a user. The slots it holds are exactly the
// user's held reservations carrying this cart's id.
type Cart struct {
	ID        uint64    // carts.id
	UserID    uint64    // carts.user_id (unique)
	ServiceID *uint64   // carts.service_id (nullable)
	UpdatedAt time.Time // carts.updated_at
}

// HeldSlot is the enriched view of one held reservation returned to clients
// polling their cart.
type HeldSlot struct {
	ReservationID   uint64    `json:"reservation_id"`
	SlotID          uint64    `json:"slot_id"`
	Date            string    `json:"date"`
	StartTime       TimeOfDay `json:"start_time"`
	EndTime         TimeOfDay `json:"end_time"`
	PriceCents      int64     `json:"price_cents"`
	Price           string    `json:"price"`
	Available       bool      `json:"available"`
	ServiceID       uint64    `json:"service_id"`
	ServiceTitle    string    `json:"service_title"`
	ScheduleID      uint64    `json:"schedule_id"`
	InstitutionID   uint64    `json:"institution_id"`
	InstitutionSlug string    `json:"institution_slug"`
}
