package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/database"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/schedule"
	"github.com/iliyamo/slot-reservation/internal/validator"
)

// ScheduleStore is the template side of the inventory.
type ScheduleStore interface {
	ScheduleOwnerID(ctx context.Context, scheduleID uint64) (uint64, error)
	DayDefinitionOwnerID(ctx context.Context, dayDefID uint64) (uint64, error)
	LoadScheduleTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (*model.Schedule, error)
	GetDayDefinitionTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.DayDefinition, error)
	CreateSlotDefinitionsTx(ctx context.Context, tx *sql.Tx, defs []model.SlotDefinition) error
	ExistingDatesTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, from, to time.Time) (map[string]bool, error)
	CreateDateTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, date time.Time) (uint64, error)
	CreateSlotsBulkTx(ctx context.Context, tx *sql.Tx, slots []model.Slot) error
}

type SlotDefinitionsInput struct {
	StartTime       string `json:"start_time" validate:"required,hhmm"`
	EndTime         string `json:"end_time" validate:"required,hhmm"`
	DurationMinutes int    `json:"duration" validate:"required,gt=0,lte=1440"`
	Price           string `json:"price" validate:"required,decimal2"`
	Capacity        int    `json:"capacity" validate:"required,gt=0"`
}

type ExpandInput struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// ExpandResult reports what an expansion created.
type ExpandResult struct {
	ScheduleID uint64   `json:"schedule_id"`
	Dates      []string `json:"dates"`
	Slots      int      `json:"slots"`
}

// ScheduleService lets institution owners grow their inventory. New slots
// start available; nothing here touches occupancy.
type ScheduleService struct {
	db       database.TxBeginner
	store    ScheduleStore
	calendar Calendar
	validate *validator.Validator
	log      *logger.Logger
}

func NewScheduleService(db database.TxBeginner, store ScheduleStore, cal Calendar, v *validator.Validator, log *logger.Logger) *ScheduleService {
	if log == nil {
		log = logger.Discard()
	}
	if v == nil {
		v = validator.New()
	}
	return &ScheduleService{db: db, store: store, calendar: cal, validate: v, log: log.With("component", "schedule")}
}

func (s *ScheduleService) authorize(ctx context.Context, resource string, id, ownerID uint64, lookup func(context.Context, uint64) (uint64, error)) error {
	owner, err := lookup(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return apperror.NotFoundWithID(resource, id)
		}
		return translate(s.log, "resolve "+resource+" owner", err, resource+"_id", id)
	}
	if owner != ownerID {
		return apperror.Forbidden("you do not own this " + resource)
	}
	return nil
}

// GenerateSlotDefinitions adds back-to-back slot definitions to a day
// definition owned by ownerID.
func (s *ScheduleService) GenerateSlotDefinitions(ctx context.Context, ownerID, dayDefID uint64, in SlotDefinitionsInput) ([]model.SlotDefinition, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	start, _ := model.ParseTimeOfDay(in.StartTime)
	end, _ := model.ParseTimeOfDay(in.EndTime)
	price, err := model.ParseCents(in.Price)
	if err != nil {
		return nil, apperror.Validationf("price: %v", err)
	}
	if err := s.authorize(ctx, "day_definition", dayDefID, ownerID, s.store.DayDefinitionOwnerID); err != nil {
		return nil, err
	}

	var defs []model.SlotDefinition
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		day, err := s.store.GetDayDefinitionTx(ctx, tx, dayDefID)
		if err != nil {
			if isNotFound(err) {
				return apperror.NotFoundWithID("day_definition", dayDefID)
			}
			return err
		}
		defs, err = schedule.GenerateSlotDefinitions(*day, schedule.DefinitionRequest{
			Window:          model.Window{Start: start, End: end},
			DurationMinutes: in.DurationMinutes,
			PriceCents:      price,
			Capacity:        in.Capacity,
		})
		if err != nil {
			return apperror.Validation(err.Error())
		}
		return s.store.CreateSlotDefinitionsTx(ctx, tx, defs)
	})
	if err != nil {
		return nil, translate(s.log, "generate slot definitions", err, "day_definition_id", dayDefID)
	}
	s.log.Info("slot definitions generated", "day_definition_id", dayDefID, "count", len(defs))
	if defs == nil {
		defs = []model.SlotDefinition{}
	}
	return defs, nil
}

// ExpandDates creates the missing dates of a schedule with one slot per slot
// definition of the matching weekday.
func (s *ScheduleService) ExpandDates(ctx context.Context, ownerID, scheduleID uint64, in ExpandInput) (*ExpandResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	from, _ := time.Parse("2006-01-02", in.From)
	to, _ := time.Parse("2006-01-02", in.To)
	if to.Sub(from) > maxListingDays*24*time.Hour {
		return nil, apperror.Validationf("date range is limited to %d days", maxListingDays)
	}
	if err := s.authorize(ctx, "schedule", scheduleID, ownerID, s.store.ScheduleOwnerID); err != nil {
		return nil, err
	}
	today := s.calendar.Today()
	from, to = schedule.Range(from, to, today)

	res := &ExpandResult{ScheduleID: scheduleID, Dates: []string{}}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		sched, err := s.store.LoadScheduleTx(ctx, tx, scheduleID)
		if err != nil {
			if isNotFound(err) {
				return apperror.NotFoundWithID("schedule", scheduleID)
			}
			return err
		}
		existing, err := s.store.ExistingDatesTx(ctx, tx, scheduleID, from, to)
		if err != nil {
			return err
		}
		var slots []model.Slot
		for _, pd := range schedule.ExpandDates(*sched, from, to, today, existing) {
			dateID, err := s.store.CreateDateTx(ctx, tx, scheduleID, pd.Date)
			if err != nil {
				return err
			}
			for _, sl := range pd.Slots {
				sl.DateID = dateID
				slots = append(slots, sl)
			}
			res.Dates = append(res.Dates, pd.Date.Format("2006-01-02"))
		}
		res.Slots = len(slots)
		return s.store.CreateSlotsBulkTx(ctx, tx, slots)
	})
	if err != nil {
		return nil, translate(s.log, "expand dates", err, "schedule_id", scheduleID)
	}
	s.log.Info("schedule expanded", "schedule_id", scheduleID, "dates", len(res.Dates), "slots", res.Slots)
	return res, nil
}
