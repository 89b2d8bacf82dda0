package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/model"
)

// Limits are the reservation caps applied to one cart. They come from a
// user's plan or, for token funded carts, from the institution defaults.
type Limits struct {
	Source        string // "plan" or "institution"
	Quota         int    // remaining reservations; negative means unlimited
	PerDay        int
	DaysInAdvance int
	InstitutionID *uint64
	Sport         *string
}

func planLimits(up *model.UserPlan) Limits {
	return Limits{
		Source:        "plan",
		Quota:         up.TotalReservations,
		PerDay:        up.Plan.TotalReservationsPerDay,
		DaysInAdvance: up.Plan.DaysInAdvanceToReserve,
		InstitutionID: up.Plan.InstitutionID,
		Sport:         up.Plan.Sport,
	}
}

func institutionLimits(det model.SlotDetail) Limits {
	return Limits{
		Source:        "institution",
		Quota:         -1,
		PerDay:        det.ReservationsPerDay,
		DaysInAdvance: det.DaysInAdvanceToReserve,
	}
}

// checkLimits verifies the whole slot set against l: the quota, the per day
// grouping, the advance window and the plan scope.
func checkLimits(l Limits, slots []model.SlotDetail, today time.Time) error {
	if l.Quota >= 0 && len(slots) > l.Quota {
		return apperror.PlanIneligible(fmt.Sprintf(
			"too many slots, only %d reservations are left in the current plan", l.Quota))
	}

	byDate := map[time.Time][]model.SlotDetail{}
	for _, s := range slots {
		d := civilDate(s.Date)
		byDate[d] = append(byDate[d], s)
	}
	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	latest := today.AddDate(0, 0, l.DaysInAdvance)
	for _, d := range dates {
		if d.After(latest) {
			return apperror.PlanIneligible(fmt.Sprintf(
				"cannot reserve %s, at most %d days in advance", d.Format("2006-01-02"), l.DaysInAdvance))
		}
		if n := len(byDate[d]); n > l.PerDay {
			return apperror.PlanIneligible(fmt.Sprintf(
				"cannot reserve more than %d slots per day, %d requested on %s", l.PerDay, n, d.Format("2006-01-02")))
		}
		for _, s := range byDate[d] {
			if l.Sport != nil && (s.Sport == nil || *s.Sport != *l.Sport) {
				return apperror.PlanIneligible(fmt.Sprintf("plan only covers %s slots", *l.Sport)).
					WithDetails(map[string]any{"slot_id": s.ID})
			}
			if l.InstitutionID != nil && s.InstitutionID != *l.InstitutionID {
				return apperror.PlanIneligible("plan belongs to a different institution").
					WithDetails(map[string]any{"slot_id": s.ID})
			}
		}
	}
	return nil
}
