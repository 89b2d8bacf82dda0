// Package service implements the reservation engine: the capacity validator,
// the cart hold manager, checkout settlement and token top-ups. Every
// occupancy change runs in one database transaction that first locks the
// affected date rows, so concurrent requests on the same pool serialize.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// SlotStore is the slot inventory.
type SlotStore interface {
	GetSlot(ctx context.Context, id uint64) (*model.SlotDetail, error)
	ListCandidateSlots(ctx context.Context, serviceID uint64, from, to time.Time) ([]model.SlotDetail, error)
	GetDetailsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.SlotDetail, error)
	LockDateTx(ctx context.Context, tx *sql.Tx, dateID uint64) error
	IntersectingOccupancyTx(ctx context.Context, tx *sql.Tx, dateID uint64, w model.Window) ([]model.Occupant, error)
	IntersectingSlotIDsTx(ctx context.Context, tx *sql.Tx, dateID uint64, w model.Window) ([]uint64, error)
	SetAvailabilityTx(ctx context.Context, tx *sql.Tx, slotID uint64, available bool) (bool, error)
}

// DayDefinitionStore resolves the capacity pool covering a weekday.
type DayDefinitionStore interface {
	DayDefinitionTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, weekday time.Weekday) (*model.DayDefinition, error)
}

// CartStore holds the per-user cart row.
type CartStore interface {
	GetOrCreateForUpdateTx(ctx context.Context, tx *sql.Tx, userID uint64) (*model.Cart, error)
	SetServiceTx(ctx context.Context, tx *sql.Tx, cartID uint64, serviceID *uint64, at time.Time) error
}

// ReservationStore manages held and confirmed reservations.
type ReservationStore interface {
	ListHeldByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]model.HeldReservation, error)
	CreateHeldTx(ctx context.Context, tx *sql.Tx, cartID, userID, slotID uint64, at time.Time) (uint64, error)
	DeleteHeldTx(ctx context.Context, tx *sql.Tx, userID uint64, ids []uint64) (int64, error)
	ConfirmTx(ctx context.Context, tx *sql.Tx, userID uint64, ids []uint64, at time.Time) (int64, error)
	ListHeldSlots(ctx context.Context, userID uint64, today time.Time) ([]model.HeldSlot, error)
}

// PlanStore manages user plan quotas.
type PlanStore interface {
	GetUserPlanTx(ctx context.Context, tx *sql.Tx, userID, planID uint64) (*model.UserPlan, error)
	GetUserPlanForUpdateTx(ctx context.Context, tx *sql.Tx, userID, planID uint64) (*model.UserPlan, error)
	UpdateRemainingTx(ctx context.Context, tx *sql.Tx, userPlanID uint64, remaining int) error
	DeleteUserPlanTx(ctx context.Context, tx *sql.Tx, userPlanID uint64) error
}

// UserStore manages token balances.
type UserStore interface {
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error)
	DebitTokensTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) (bool, error)
	CreditTokensTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) error
}

// TransactionStore persists top-up and booking records.
type TransactionStore interface {
	CreateBookingTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error
	CreatePendingTopup(ctx context.Context, t *model.Transaction) error
	GetByExternalIDForUpdateTx(ctx context.Context, tx *sql.Tx, externalID string) (*model.Transaction, error)
	MarkSuccessTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error
	GetByID(ctx context.Context, id uint64) (*model.Transaction, error)
	ReceiptLines(ctx context.Context, transactionID uint64) ([]model.ReceiptLine, error)
}
