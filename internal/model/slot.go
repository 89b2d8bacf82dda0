package model

import "time"

// Date is one concrete calendar day of a schedule.
type Date struct {
	ID         uint64    // dates.id
	ScheduleID uint64    // dates.schedule_id
	Date       time.Time // dates.date (UTC midnight)
}

// Slot is the atomic bookable unit. Available is a cached flag derived from
// occupancy and is recomputed by every operation that changes occupancy.
//
// Fields:
//  ID               – primary key identifier.
//  DateID           – concrete day the slot belongs to.
//  SlotDefinitionID – template the slot was generated from.
//  Window           – start and end wall-clock times.
//  PriceCents       – price in token cents.
//  Capacity         – reservations allowed on this definition at once.
//  Available        – derived availability flag.
type Slot struct {
	ID               uint64 // slots.id
	DateID           uint64 // slots.date_id
	SlotDefinitionID uint64 // slots.slot_definition_id
	Window           Window // slots.start_time, end_time
	PriceCents       int64  // slots.price_cents
	Capacity         int    // slots.capacity
	Available        bool   // slots.available
}

// SlotDetail is a slot joined with the date, service and institution it
// belongs to. Validation and settlement work on this shape.
type SlotDetail struct {
	Slot
	Date                   time.Time
	ScheduleID             uint64
	ServiceID              uint64
	ServiceTitle           string
	Sport                  *string
	InstitutionID          uint64
	InstitutionSlug        string
	DaysInAdvanceToReserve int
	ReservationsPerDay     int
}

// Occupant is one reservation counted against a capacity pool.
type Occupant struct {
	ReservationID    uint64
	UserID           uint64
	SlotID           uint64
	SlotDefinitionID uint64
}

// AvailabilityChange records a flip of Slot.Available.
type AvailabilityChange struct {
	SlotID    uint64
	Available bool
}
