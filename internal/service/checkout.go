package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/database"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/queue"
	"github.com/iliyamo/slot-reservation/internal/repository"
	"github.com/iliyamo/slot-reservation/internal/validator"
)

const (
	FundedByPlan   = "plan"
	FundedByTokens = "tokens"
)

type CheckoutInput struct {
	PlanID *uint64 `json:"plan_id" validate:"omitempty,gt=0"`
}

type CheckoutResult struct {
	TransactionID  uint64   `json:"transaction_id"`
	ReservationIDs []uint64 `json:"reservation_ids"`
	TotalCents     int64    `json:"total_cents"`
	Total          string   `json:"total"`
	Tokens         string   `json:"tokens"`
	FundedBy       string   `json:"funded_by"`
	PlanRemaining  *int     `json:"plan_remaining,omitempty"`
}

// CheckoutService settles carts. The reservation transitions, the single
// balance mutation and the booking record commit together or not at all.
type CheckoutService struct {
	db           database.TxBeginner
	slots        SlotStore
	days         DayDefinitionStore
	carts        CartStore
	reservations ReservationStore
	plans        PlanStore
	users        UserStore
	transactions TransactionStore
	calendar     Calendar
	validate     *validator.Validator
	locker       Locker
	lockTTL      time.Duration
	bookings     BookingPublisher
	availability AvailabilityPublisher
	log          *logger.Logger
}

type CheckoutDeps struct {
	DB           database.TxBeginner
	Slots        SlotStore
	Days         DayDefinitionStore
	Carts        CartStore
	Reservations ReservationStore
	Plans        PlanStore
	Users        UserStore
	Transactions TransactionStore
	Calendar     Calendar
	Validator    *validator.Validator
	Locker       Locker
	LockTTL      time.Duration
	Bookings     BookingPublisher
	Availability AvailabilityPublisher
	Log          *logger.Logger
}

func NewCheckoutService(d CheckoutDeps) *CheckoutService {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Locker == nil {
		d.Locker = NewRedisLocker(nil)
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 10 * time.Second
	}
	return &CheckoutService{
		db:           d.DB,
		slots:        d.Slots,
		days:         d.Days,
		carts:        d.Carts,
		reservations: d.Reservations,
		plans:        d.Plans,
		users:        d.Users,
		transactions: d.Transactions,
		calendar:     d.Calendar,
		validate:     d.Validator,
		locker:       d.Locker,
		lockTTL:      d.LockTTL,
		bookings:     d.Bookings,
		availability: d.Availability,
		log:          d.Log.With("component", "checkout"),
	}
}

// lockUser takes the cross-instance money lock of a user. An unreachable
// Redis is logged and tolerated.
func lockUser(ctx context.Context, l Locker, log *logger.Logger, userID uint64, ttl time.Duration) (func(), error) {
	release, err := l.Acquire(ctx, checkoutLockKey(userID), ttl)
	if errors.Is(err, ErrLockBusy) {
		return nil, apperror.Conflict("another payment for this user is in progress, retry shortly")
	}
	if err != nil {
		log.Warn("checkout lock unavailable", "user_id", userID, "error", err)
		return func() {}, nil
	}
	return release, nil
}

// Checkout confirms every held reservation of the user dated today or later
// and pays for them with the given plan or with tokens.
func (s *CheckoutService) Checkout(ctx context.Context, userID uint64, in CheckoutInput) (*CheckoutResult, error) {
	if userID == 0 {
		return nil, apperror.Forbidden("authentication required")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	release, err := lockUser(ctx, s.locker, s.log, userID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	today := s.calendar.Today()
	now := s.calendar.Now().UTC()
	res := &CheckoutResult{}
	var (
		event   queue.BookingConfirmedEvent
		changes []model.AvailabilityChange
	)

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		user, err := s.users.GetForUpdateTx(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.NotFoundWithID("user", userID)
			}
			return err
		}
		cart, err := s.carts.GetOrCreateForUpdateTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		held, err := s.reservations.ListHeldByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		var live, stale []model.HeldReservation
		for _, h := range held {
			if civilDate(h.Date).Before(today) {
				stale = append(stale, h)
			} else {
				live = append(live, h)
			}
		}
		if len(live) == 0 {
			return apperror.Validation("cart is empty")
		}

		slotIDs := make([]uint64, len(live))
		resIDs := make([]uint64, len(live))
		dateIDs := make([]uint64, 0, len(held))
		for i, h := range live {
			slotIDs[i] = h.SlotID
			resIDs[i] = h.ID
			dateIDs = append(dateIDs, h.DateID)
		}
		for _, h := range stale {
			dateIDs = append(dateIDs, h.DateID)
		}
		details, err := s.slots.GetDetailsTx(ctx, tx, slotIDs)
		if err != nil {
			return err
		}
		if len(details) != len(live) {
			return apperror.Conflict("cart changed concurrently, retry the request")
		}

		pool := newPoolTx(tx, s.slots, s.days)
		if err := pool.lockDates(ctx, dateIDs); err != nil {
			return err
		}

		var total int64
		for _, d := range details {
			total += d.PriceCents
		}

		txn := &model.Transaction{
			UserID:         userID,
			Status:         model.TransactionSuccess,
			ReservationIDs: sortedIDs(resIDs),
			CreatedAt:      now,
		}
		balance := user.TokensCents

		if in.PlanID != nil {
			up, err := s.plans.GetUserPlanForUpdateTx(ctx, tx, userID, *in.PlanID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperror.NotFoundWithID("plan", *in.PlanID)
				}
				return err
			}
			if err := checkLimits(planLimits(up), details, today); err != nil {
				return err
			}
			remaining := up.TotalReservations - len(live)
			if remaining <= 0 {
				err = s.plans.DeleteUserPlanTx(ctx, tx, up.ID)
				remaining = 0
			} else {
				err = s.plans.UpdateRemainingTx(ctx, tx, up.ID, remaining)
			}
			if err != nil {
				return err
			}
			res.FundedBy = FundedByPlan
			res.PlanRemaining = &remaining
			txn.PlanID = in.PlanID
		} else {
			if err := checkLimits(institutionLimits(details[0]), details, today); err != nil {
				return err
			}
			if !user.CanAfford(total) {
				return insufficientFunds(total, balance)
			}
			if total > 0 {
				ok, err := s.users.DebitTokensTx(ctx, tx, userID, total)
				if err != nil {
					return err
				}
				if !ok {
					return insufficientFunds(total, balance)
				}
				balance -= total
			}
			res.FundedBy = FundedByTokens
			txn.AmountCents = total
		}

		n, err := s.reservations.ConfirmTx(ctx, tx, userID, resIDs, now)
		if err != nil {
			return err
		}
		if n != int64(len(resIDs)) {
			return apperror.Conflict("cart changed concurrently, retry the request")
		}
		if err := s.transactions.CreateBookingTx(ctx, tx, txn); err != nil {
			return err
		}

		if len(stale) > 0 {
			ids := make([]uint64, len(stale))
			for i, h := range stale {
				ids[i] = h.ID
				if err := pool.touch(ctx, h.DateID, h.Window); err != nil {
					return err
				}
			}
			if _, err := s.reservations.DeleteHeldTx(ctx, tx, userID, ids); err != nil {
				return err
			}
			if changes, err = pool.recompute(ctx); err != nil {
				return err
			}
		}
		if err := s.carts.SetServiceTx(ctx, tx, cart.ID, nil, now); err != nil {
			return err
		}

		res.TransactionID = txn.ID
		res.ReservationIDs = txn.ReservationIDs
		res.TotalCents = total
		res.Total = model.FormatCents(total)
		res.Tokens = model.FormatCents(balance)
		event = bookingEvent(txn, res.FundedBy, details, live, now)
		return nil
	})
	if err != nil {
		return nil, translate(s.log, "checkout", err, "user_id", userID)
	}

	s.log.Info("checkout settled", "user_id", userID, "transaction_id", res.TransactionID,
		"reservation_ids", res.ReservationIDs, "funded_by", res.FundedBy, "total_cents", res.TotalCents)
	if s.bookings != nil {
		if err := s.bookings.PublishBookingConfirmed(ctx, event); err != nil {
			s.log.Warn("publish booking confirmed failed", "transaction_id", res.TransactionID, "error", err)
		}
	}
	if s.availability != nil && len(changes) > 0 {
		if err := s.availability.PublishAvailability(ctx, changes); err != nil {
			s.log.Warn("publish availability failed", "error", err)
		}
	}
	return res, nil
}

func insufficientFunds(required, available int64) error {
	return apperror.InsufficientFunds(fmt.Sprintf(
		"not enough tokens: %s required, %s available", model.FormatCents(required), model.FormatCents(available))).
		WithDetails(map[string]any{"required": model.FormatCents(required), "available": model.FormatCents(available)})
}

func bookingEvent(t *model.Transaction, fundedBy string, details []model.SlotDetail, held []model.HeldReservation, at time.Time) queue.BookingConfirmedEvent {
	resBySlot := make(map[uint64]uint64, len(held))
	for _, h := range held {
		resBySlot[h.SlotID] = h.ID
	}
	ev := queue.BookingConfirmedEvent{
		TransactionID: t.ID,
		UserID:        t.UserID,
		FundedBy:      fundedBy,
		PlanID:        t.PlanID,
		ConfirmedAt:   at.Format(time.RFC3339),
	}
	for _, d := range details {
		ev.ServiceID = d.ServiceID
		ev.ServiceTitle = d.ServiceTitle
		ev.InstitutionSlug = d.InstitutionSlug
		ev.TotalCents += d.PriceCents
		ev.Slots = append(ev.Slots, queue.BookedSlot{
			ReservationID: resBySlot[d.ID],
			SlotID:        d.ID,
			Date:          d.Date.Format("2006-01-02"),
			StartTime:     d.Window.Start.String(),
			EndTime:       d.Window.End.String(),
			PriceCents:    d.PriceCents,
		})
	}
	return ev
}
