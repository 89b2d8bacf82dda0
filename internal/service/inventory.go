package service

import (
	"context"
	"time"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/validator"
)

const maxListingDays = 62

type SlotQuery struct {
	From string `json:"from" query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// SlotView is a public listing row.
type SlotView struct {
	ID         uint64          `json:"id"`
	Date       string          `json:"date"`
	StartTime  model.TimeOfDay `json:"start_time"`
	EndTime    model.TimeOfDay `json:"end_time"`
	PriceCents int64           `json:"price_cents"`
	Price      string          `json:"price"`
	Capacity   int             `json:"capacity"`
	Available  bool            `json:"available"`
}

// ViewOf renders a slot for listings.
func ViewOf(d model.SlotDetail) SlotView {
	return SlotView{
		ID:         d.ID,
		Date:       d.Date.Format("2006-01-02"),
		StartTime:  d.Window.Start,
		EndTime:    d.Window.End,
		PriceCents: d.PriceCents,
		Price:      model.FormatCents(d.PriceCents),
		Capacity:   d.Capacity,
		Available:  d.Available,
	}
}

// InventoryService serves read paths over the slot store. Availability is
// read from the cached flag and never recomputed here.
type InventoryService struct {
	slots    SlotStore
	calendar Calendar
	validate *validator.Validator
	log      *logger.Logger
}

func NewInventoryService(slots SlotStore, cal Calendar, v *validator.Validator, log *logger.Logger) *InventoryService {
	if log == nil {
		log = logger.Discard()
	}
	if v == nil {
		v = validator.New()
	}
	return &InventoryService{slots: slots, calendar: cal, validate: v, log: log.With("component", "inventory")}
}

// GetSlot returns one slot or NotFound.
func (s *InventoryService) GetSlot(ctx context.Context, id uint64) (*model.SlotDetail, error) {
	det, err := s.slots.GetSlot(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFoundWithID("slot", id)
		}
		return nil, translate(s.log, "get slot", err, "slot_id", id)
	}
	return det, nil
}

// ListCandidateSlots lists a service's slots between q.From and q.To. From
// defaults to today and is never earlier than today; To defaults to a week
// after From.
func (s *InventoryService) ListCandidateSlots(ctx context.Context, serviceID uint64, q SlotQuery) ([]SlotView, error) {
	if serviceID == 0 {
		return nil, apperror.Validation("service id is required")
	}
	if err := s.validate.Struct(q); err != nil {
		return nil, err
	}
	today := s.calendar.Today()
	from, to := today, today.AddDate(0, 0, 7)
	if q.From != "" {
		from, _ = time.Parse("2006-01-02", q.From)
		if from.Before(today) {
			from = today
		}
		if q.To == "" {
			to = from.AddDate(0, 0, 7)
		}
	}
	if q.To != "" {
		to, _ = time.Parse("2006-01-02", q.To)
	}
	if to.Before(from) {
		return nil, apperror.Validation("to must not be before from")
	}
	if to.Sub(from) > maxListingDays*24*time.Hour {
		return nil, apperror.Validationf("date range is limited to %d days", maxListingDays)
	}

	details, err := s.slots.ListCandidateSlots(ctx, serviceID, from, to)
	if err != nil {
		return nil, translate(s.log, "list candidate slots", err, "service_id", serviceID)
	}
	out := make([]SlotView, len(details))
	for i, d := range details {
		out[i] = ViewOf(d)
	}
	return out, nil
}
