package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/repository"
)

// poolTx is the capacity bookkeeping of one transaction. It takes the date
// locks, validates candidates against the locked pools and tracks which
// slots need their availability recomputed before commit.
type poolTx struct {
	tx    *sql.Tx
	slots SlotStore
	days  DayDefinitionStore

	locked   map[uint64]bool
	dayDefs  map[uint64]*model.DayDefinition
	affected map[uint64]struct{}
}

func newPoolTx(tx *sql.Tx, slots SlotStore, days DayDefinitionStore) *poolTx {
	return &poolTx{
		tx:       tx,
		slots:    slots,
		days:     days,
		locked:   map[uint64]bool{},
		dayDefs:  map[uint64]*model.DayDefinition{},
		affected: map[uint64]struct{}{},
	}
}

// lockDates locks every date not locked yet, in ascending id order so two
// transactions over the same dates cannot deadlock on each other.
func (p *poolTx) lockDates(ctx context.Context, dateIDs []uint64) error {
	pending := make([]uint64, 0, len(dateIDs))
	for _, id := range dateIDs {
		if !p.locked[id] {
			pending = append(pending, id)
			p.locked[id] = true
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	for _, id := range pending {
		if err := p.slots.LockDateTx(ctx, p.tx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperror.NotFoundWithID("date", id)
			}
			return err
		}
	}
	return nil
}

// dayFor returns the day definition covering the slot's date, or nil when
// the schedule has none for that weekday.
func (p *poolTx) dayFor(ctx context.Context, det model.SlotDetail) (*model.DayDefinition, error) {
	if dd, ok := p.dayDefs[det.DateID]; ok {
		return dd, nil
	}
	dd, err := p.days.DayDefinitionTx(ctx, p.tx, det.ScheduleID, det.Date.Weekday())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		dd = nil
	}
	p.dayDefs[det.DateID] = dd
	return dd, nil
}

// validate decides whether userID may add a hold on cand. The date of cand
// must already be locked.
func (p *poolTx) validate(ctx context.Context, userID, serviceID uint64, cand model.SlotDetail, today time.Time) error {
	if civilDate(cand.Date).Before(today) {
		return apperror.Validationf("slot %d is on %s, which has passed", cand.ID, cand.Date.Format("2006-01-02"))
	}
	if cand.ServiceID != serviceID {
		return apperror.Validationf("slot %d belongs to another service, a cart cannot mix services", cand.ID).
			WithDetails(map[string]any{"slot_id": cand.ID, "service_id": cand.ServiceID})
	}
	day, err := p.dayFor(ctx, cand)
	if err != nil {
		return err
	}
	if day == nil {
		return apperror.Validationf("schedule has no opening hours on %s", model.WeekdayName(cand.Date.Weekday()))
	}
	if !day.Window.Contains(cand.Window) {
		return apperror.Validationf("slot %d at %s is outside opening hours %s", cand.ID, cand.Window, day.Window)
	}
	occupants, err := p.slots.IntersectingOccupancyTx(ctx, p.tx, cand.DateID, cand.Window)
	if err != nil {
		return err
	}
	return checkPool(cand.Slot, *day, usageFor(occupants, cand.SlotDefinitionID, userID))
}

// touch marks every slot overlapping w on dateID for recomputation.
func (p *poolTx) touch(ctx context.Context, dateID uint64, w model.Window) error {
	ids, err := p.slots.IntersectingSlotIDsTx(ctx, p.tx, dateID, w)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p.affected[id] = struct{}{}
	}
	return nil
}

// recompute refreshes the cached availability of every touched slot once
// and returns the flags that flipped.
func (p *poolTx) recompute(ctx context.Context) ([]model.AvailabilityChange, error) {
	if len(p.affected) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(p.affected))
	for id := range p.affected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	details, err := p.slots.GetDetailsTx(ctx, p.tx, ids)
	if err != nil {
		return nil, err
	}
	var changes []model.AvailabilityChange
	for _, det := range details {
		if !p.locked[det.DateID] {
			return nil, fmt.Errorf("recompute slot %d: date %d not locked", det.ID, det.DateID)
		}
		available := false
		day, err := p.dayFor(ctx, det)
		if err != nil {
			return nil, err
		}
		if day != nil {
			occupants, err := p.slots.IntersectingOccupancyTx(ctx, p.tx, det.DateID, det.Window)
			if err != nil {
				return nil, err
			}
			available = hasRoom(det.Slot, *day, occupants)
		}
		changed, err := p.slots.SetAvailabilityTx(ctx, p.tx, det.ID, available)
		if err != nil {
			return nil, err
		}
		if changed {
			changes = append(changes, model.AvailabilityChange{SlotID: det.ID, Available: available})
		}
	}
	p.affected = map[uint64]struct{}{}
	return changes, nil
}
