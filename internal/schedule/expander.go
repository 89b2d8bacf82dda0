// Package schedule turns weekly templates into concrete inventory: slot
// definitions inside a day's opening window, and dates with one slot per
// definition.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/slot-reservation/internal/model"
)

var (
	ErrBadWindow   = errors.New("window must have start before end")
	ErrBadDuration = errors.New("duration must be greater than 0")
	ErrBadPrice    = errors.New("price cannot be negative")
	ErrBadCapacity = errors.New("capacity must be greater than 0")
)

// DefinitionRequest describes a run of back-to-back slot definitions.
type DefinitionRequest struct {
	Window          model.Window
	DurationMinutes int
	PriceCents      int64
	Capacity        int
}

func (r DefinitionRequest) validate(day model.DayDefinition) error {
	if !r.Window.Valid() {
		return ErrBadWindow
	}
	if r.DurationMinutes <= 0 {
		return ErrBadDuration
	}
	if r.PriceCents < 0 {
		return ErrBadPrice
	}
	if r.Capacity <= 0 {
		return ErrBadCapacity
	}
	if !day.Window.Contains(r.Window) {
		return fmt.Errorf("window %s is outside opening hours %s", r.Window, day.Window)
	}
	return nil
}

// GenerateSlotDefinitions splits r.Window into consecutive definitions of
// r.DurationMinutes. A trailing remainder shorter than the duration is
// dropped, and any definition overlapping an existing one is skipped.
func GenerateSlotDefinitions(day model.DayDefinition, r DefinitionRequest) ([]model.SlotDefinition, error) {
	if err := r.validate(day); err != nil {
		return nil, err
	}
	step := model.TimeOfDay(r.DurationMinutes)
	var out []model.SlotDefinition
	for start := r.Window.Start; start+step <= r.Window.End; start += step {
		w := model.Window{Start: start, End: start + step}
		if overlapsAny(w, day.SlotDefinitions) {
			continue
		}
		out = append(out, model.SlotDefinition{
			DayDefinitionID: day.ID,
			Window:          w,
			DurationMinutes: r.DurationMinutes,
			PriceCents:      r.PriceCents,
			Capacity:        r.Capacity,
		})
	}
	return out, nil
}

func overlapsAny(w model.Window, defs []model.SlotDefinition) bool {
	for _, d := range defs {
		if d.Window.Overlaps(w) {
			return true
		}
	}
	return false
}

// PlannedDate is a date to be created together with its slots. The slots'
// DateID is filled once the date row exists.
type PlannedDate struct {
	Date  time.Time
	Slots []model.Slot
}

// Range clamps [from, to] so it never starts before today and never ends
// before it starts.
func Range(from, to, today time.Time) (time.Time, time.Time) {
	if from.Before(today) {
		from = today
	}
	if to.Before(from) {
		to = from
	}
	return from, to
}

// ExpandDates plans the dates of s between from and to (inclusive, after
// clamping). Dates already present in existing, keyed YYYY-MM-DD, and
// weekdays without a day definition are skipped.
func ExpandDates(s model.Schedule, from, to, today time.Time, existing map[string]bool) []PlannedDate {
	from, to = Range(from, to, today)
	var out []PlannedDate
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if existing[d.Format("2006-01-02")] {
			continue
		}
		day, ok := s.DayFor(d.Weekday())
		if !ok {
			continue
		}
		pd := PlannedDate{Date: d}
		for _, def := range day.SlotDefinitions {
			pd.Slots = append(pd.Slots, model.Slot{
				SlotDefinitionID: def.ID,
				Window:           def.Window,
				PriceCents:       def.PriceCents,
				Capacity:         def.Capacity,
				Available:        true,
			})
		}
		out = append(out, pd)
	}
	return out
}
