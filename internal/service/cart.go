package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/database"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/repository"
	"github.com/iliyamo/slot-reservation/internal/validator"
)

// SetCartInput is the desired cart state. SlotIDs is authoritative: held
// slots missing from it are released. A request without a service clears
// the cart.
type SetCartInput struct {
	ServiceID *uint64  `json:"service_id" validate:"omitempty,gt=0"`
	SlotIDs   []uint64 `json:"slot_ids" validate:"max=50,dive,gt=0"`
	PlanID    *uint64  `json:"plan_id" validate:"omitempty,gt=0"`
}

// CartResult is the cart after reconciliation.
type CartResult struct {
	CartID    uint64           `json:"cart_id"`
	ServiceID *uint64          `json:"service_id"`
	Slots     []model.HeldSlot `json:"slots"`
	Added     []uint64         `json:"added"`
	Released  []uint64         `json:"released"`
}

// CartService owns the hold lifecycle of each user's cart.
type CartService struct {
	db           database.TxBeginner
	slots        SlotStore
	days         DayDefinitionStore
	carts        CartStore
	reservations ReservationStore
	plans        PlanStore
	calendar     Calendar
	validate     *validator.Validator
	availability AvailabilityPublisher
	log          *logger.Logger
}

type CartDeps struct {
	DB           database.TxBeginner
	Slots        SlotStore
	Days         DayDefinitionStore
	Carts        CartStore
	Reservations ReservationStore
	Plans        PlanStore
	Calendar     Calendar
	Validator    *validator.Validator
	Availability AvailabilityPublisher
	Log          *logger.Logger
}

func NewCartService(d CartDeps) *CartService {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	return &CartService{
		db:           d.DB,
		slots:        d.Slots,
		days:         d.Days,
		carts:        d.Carts,
		reservations: d.Reservations,
		plans:        d.Plans,
		calendar:     d.Calendar,
		validate:     d.Validator,
		availability: d.Availability,
		log:          d.Log.With("component", "cart"),
	}
}

// SetCartContents reconciles the user's held reservations with in.SlotIDs.
// Releases and new holds are applied in one transaction: either every
// requested slot is held afterwards or nothing changed.
func (s *CartService) SetCartContents(ctx context.Context, userID uint64, in SetCartInput) (*CartResult, error) {
	if userID == 0 {
		return nil, apperror.Forbidden("authentication required")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	desired := uniqueIDs(in.SlotIDs)
	if in.ServiceID == nil && len(desired) > 0 {
		return nil, apperror.Validation("service_id is required when slot_ids are given")
	}

	today := s.calendar.Today()
	now := s.calendar.Now().UTC()
	result := &CartResult{}
	var changes []model.AvailabilityChange

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		cart, err := s.carts.GetOrCreateForUpdateTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.CartID = cart.ID

		held, err := s.reservations.ListHeldByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		want := make(map[uint64]bool, len(desired))
		for _, id := range desired {
			want[id] = true
		}
		var (
			release []model.HeldReservation
			keptIDs []uint64
		)
		heldSlot := map[uint64]bool{}
		for _, h := range held {
			stale := civilDate(h.Date).Before(today)
			if stale || !want[h.SlotID] {
				release = append(release, h)
				continue
			}
			heldSlot[h.SlotID] = true
			keptIDs = append(keptIDs, h.SlotID)
		}
		var addIDs []uint64
		for _, id := range desired {
			if !heldSlot[id] {
				addIDs = append(addIDs, id)
			}
		}

		if len(keptIDs) > 0 && cart.ServiceID != nil && in.ServiceID != nil && *cart.ServiceID != *in.ServiceID {
			return apperror.Validation("cart already holds slots of another service, release them first")
		}

		details, err := s.slots.GetDetailsTx(ctx, tx, append(append([]uint64(nil), keptIDs...), addIDs...))
		if err != nil {
			return err
		}
		byID := make(map[uint64]model.SlotDetail, len(details))
		for _, d := range details {
			byID[d.ID] = d
		}
		candidates := make([]model.SlotDetail, 0, len(addIDs))
		for _, id := range addIDs {
			d, ok := byID[id]
			if !ok {
				return apperror.NotFoundWithID("slot", id)
			}
			candidates = append(candidates, d)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if !candidates[i].Date.Equal(candidates[j].Date) {
				return candidates[i].Date.Before(candidates[j].Date)
			}
			return candidates[i].Window.Start < candidates[j].Window.Start
		})

		if len(desired) > 0 {
			all := make([]model.SlotDetail, 0, len(desired))
			for _, id := range desired {
				all = append(all, byID[id])
			}
			if err := s.checkCartLimits(ctx, tx, userID, in.PlanID, all, today); err != nil {
				return err
			}
		}

		pool := newPoolTx(tx, s.slots, s.days)
		dateIDs := make([]uint64, 0, len(release)+len(candidates))
		for _, h := range release {
			dateIDs = append(dateIDs, h.DateID)
		}
		for _, c := range candidates {
			dateIDs = append(dateIDs, c.DateID)
		}
		if err := pool.lockDates(ctx, dateIDs); err != nil {
			return err
		}

		if len(release) > 0 {
			ids := make([]uint64, len(release))
			for i, h := range release {
				ids[i] = h.ID
				result.Released = append(result.Released, h.SlotID)
			}
			n, err := s.reservations.DeleteHeldTx(ctx, tx, userID, ids)
			if err != nil {
				return err
			}
			if n != int64(len(ids)) {
				return apperror.Conflict("cart changed concurrently, retry the request")
			}
			for _, h := range release {
				if err := pool.touch(ctx, h.DateID, h.Window); err != nil {
					return err
				}
			}
		}

		for _, c := range candidates {
			if err := pool.validate(ctx, userID, *in.ServiceID, c, today); err != nil {
				return err
			}
			if _, err := s.reservations.CreateHeldTx(ctx, tx, cart.ID, userID, c.ID, now); err != nil {
				return err
			}
			if err := pool.touch(ctx, c.DateID, c.Window); err != nil {
				return err
			}
			result.Added = append(result.Added, c.ID)
		}

		if changes, err = pool.recompute(ctx); err != nil {
			return err
		}

		var svc *uint64
		if len(desired) > 0 {
			svc = in.ServiceID
		}
		result.ServiceID = svc
		return s.carts.SetServiceTx(ctx, tx, cart.ID, svc, now)
	})
	if err != nil {
		return nil, translate(s.log, "set cart contents", err, "user_id", userID, "slot_ids", desired)
	}

	s.log.Info("cart reconciled", "user_id", userID, "cart_id", result.CartID,
		"added", result.Added, "released", result.Released)
	s.publishAvailability(ctx, changes)

	slots, err := s.reservations.ListHeldSlots(ctx, userID, today)
	if err != nil {
		return nil, translate(s.log, "read held slots", err, "user_id", userID)
	}
	result.Slots = slots
	return result, nil
}

func (s *CartService) checkCartLimits(ctx context.Context, tx *sql.Tx, userID uint64, planID *uint64, slots []model.SlotDetail, today time.Time) error {
	if planID == nil {
		return checkLimits(institutionLimits(slots[0]), slots, today)
	}
	up, err := s.plans.GetUserPlanTx(ctx, tx, userID, *planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFoundWithID("plan", *planID)
		}
		return err
	}
	return checkLimits(planLimits(up), slots, today)
}

// ReadHeldSlots returns the user's held slots dated today or later.
func (s *CartService) ReadHeldSlots(ctx context.Context, userID uint64) ([]model.HeldSlot, error) {
	if userID == 0 {
		return nil, apperror.Forbidden("authentication required")
	}
	slots, err := s.reservations.ListHeldSlots(ctx, userID, s.calendar.Today())
	if err != nil {
		return nil, translate(s.log, "read held slots", err, "user_id", userID)
	}
	return slots, nil
}

func (s *CartService) publishAvailability(ctx context.Context, changes []model.AvailabilityChange) {
	if s.availability == nil || len(changes) == 0 {
		return
	}
	if err := s.availability.PublishAvailability(ctx, changes); err != nil {
		s.log.Warn("publish availability failed", "error", err, "changes", len(changes))
	}
}
