package model

import "time"

// Institution owns services and carries the default reservation caps used
// when a cart is paid with tokens instead of a plan.
//
// Fields:
//  ID                      – primary key identifier.
//  OwnerID                 – user who manages the institution.
//  Name                    – display name.
//  Slug                    – URL friendly identifier.
//  DaysInAdvanceToReserve  – how many days ahead a slot may be reserved.
//  TotalReservationsPerDay – maximum slots per calendar day per checkout.
type Institution struct {
	ID                      uint64    // institutions.id
	OwnerID                 uint64    // institutions.owner_id
	Name                    string    // institutions.name
	Slug                    string    // institutions.slug
	DaysInAdvanceToReserve  int       // institutions.days_in_advance_to_reserve
	TotalReservationsPerDay int       // institutions.total_reservations_per_day
	CreatedAt               time.Time // institutions.created_at
}

// Service is a bookable offering of an institution. Every service type
// (sports, hairdressing, wellness, ...) is handled the same way through the
// schedule it points to.
type Service struct {
	ID            uint64  // services.id
	InstitutionID uint64  // services.institution_id
	Type          string  // services.type
	Sport         *string // services.sport (nullable)
	Title         string  // services.title
	ScheduleID    uint64  // services.schedule_id
}
