package model

import "time"

// Transaction types and statuses.
const (
	TransactionTopup   = "topup"
	TransactionBooking = "booking"

	TransactionPending = "pending"
	TransactionSuccess = "success"
)

// Transaction is the audit record of a token top-up or a booking settlement.
//
// Fields:
//  ID                – primary key identifier.
//  UserID            – user the transaction belongs to.
//  Type              – topup or booking.
//  Status            – pending or success.
//  AmountCents       – tokens credited (topup) or debited (booking).
//  PlanID            – plan used to settle a booking, if any.
//  ExternalPaymentID – payment processor id for top-ups (unique).
//  ReservationIDs    – reservations settled by a booking.
type Transaction struct {
	ID                uint64    // transactions.id
	UserID            uint64    // transactions.user_id
	Type              string    // transactions.type
	Status            string    // transactions.status
	AmountCents       int64     // transactions.amount_cents
	PlanID            *uint64   // transactions.plan_id (nullable)
	ExternalPaymentID *string   // transactions.external_payment_id (nullable, unique)
	ReservationIDs    []uint64  // transaction_reservations.reservation_id
	CreatedAt         time.Time // transactions.created_at
	UpdatedAt         time.Time // transactions.updated_at
}

// ReceiptLine is one settled slot printed on a booking receipt.
type ReceiptLine struct {
	ReservationID uint64
	Date          time.Time
	Window        Window
	PriceCents    int64
	ServiceTitle  string
}
