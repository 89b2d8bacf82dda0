// Package queue carries booking events over RabbitMQ: the payloads, the
// publisher used after checkout commits and the consumer writing them to
// the booking log.
package queue

// BookedSlot is one slot settled by a booking.
type BookedSlot struct {
	ReservationID uint64 `json:"reservation_id"`
	SlotID        uint64 `json:"slot_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	PriceCents    int64  `json:"price_cents"`
}

// BookingConfirmedEvent is published once per successful checkout. It holds
// enough for consumers to log or notify without querying the database.
type BookingConfirmedEvent struct {
	TransactionID   uint64       `json:"transaction_id"`
	UserID          uint64       `json:"user_id"`
	ServiceID       uint64       `json:"service_id"`
	ServiceTitle    string       `json:"service_title"`
	InstitutionSlug string       `json:"institution_slug"`
	FundedBy        string       `json:"funded_by"`
	PlanID          *uint64      `json:"plan_id,omitempty"`
	TotalCents      int64        `json:"total_cents"`
	Slots           []BookedSlot `json:"slots"`
	ConfirmedAt     string       `json:"confirmed_at"`
}
