package model

// Plan is a subscription template. InstitutionID and Sport, when set, restrict
// which slots the plan may pay for.
type Plan struct {
	ID                      uint64  // plans.id
	Title                   string  // plans.title
	InstitutionID           *uint64 // plans.institution_id (nullable)
	Sport                   *string // plans.sport (nullable)
	TotalReservations       int     // plans.total_reservations
	TotalReservationsPerDay int     // plans.total_reservations_per_day
	DaysInAdvanceToReserve  int     // plans.days_in_advance_to_reserve
}

// UserPlan links a user to a plan and tracks the remaining quota. The link is
// deleted once the quota is consumed.
type UserPlan struct {
	ID                uint64 // user_plans.id
	UserID            uint64 // user_plans.user_id
	TotalReservations int    // user_plans.total_reservations (remaining)
	Plan              Plan   // user_plans.plan_id
}
