package service

import (
	"fmt"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/model"
)

// PoolUsage summarizes the reservations overlapping one candidate window.
type PoolUsage struct {
	Intersecting   int  // reservations on any overlapping slot of the date
	SameDefinition int  // of those, reservations generated from the candidate's definition
	HeldByUser     bool // the requesting user already occupies an overlapping slot
}

// usageFor counts occupants for a candidate. userID 0 never matches, which
// is how availability asks "could anyone still hold this slot".
func usageFor(occupants []model.Occupant, slotDefinitionID, userID uint64) PoolUsage {
	var u PoolUsage
	for _, o := range occupants {
		u.Intersecting++
		if o.SlotDefinitionID == slotDefinitionID {
			u.SameDefinition++
		}
		if userID != 0 && o.UserID == userID {
			u.HeldByUser = true
		}
	}
	return u
}

// checkPool applies the day pool cap, the definition cap and the
// self-overlap rule, in that order.
func checkPool(slot model.Slot, day model.DayDefinition, u PoolUsage) error {
	if u.Intersecting+1 > day.Capacity {
		return apperror.CapacityExceeded(fmt.Sprintf(
			"slot %d at %s: day capacity of %d overlapping reservations reached", slot.ID, slot.Window, day.Capacity)).
			WithDetails(map[string]any{"slot_id": slot.ID, "rule": "day_capacity"})
	}
	if u.SameDefinition+1 > slot.Capacity {
		return apperror.CapacityExceeded(fmt.Sprintf(
			"slot %d at %s is fully booked", slot.ID, slot.Window)).
			WithDetails(map[string]any{"slot_id": slot.ID, "rule": "slot_capacity"})
	}
	if u.HeldByUser {
		return apperror.CapacityExceeded(fmt.Sprintf(
			"slot %d at %s overlaps a slot you already hold", slot.ID, slot.Window)).
			WithDetails(map[string]any{"slot_id": slot.ID, "rule": "self_overlap"})
	}
	return nil
}

// hasRoom is the availability decision: one more reservation by a user who
// holds nothing in the pool would pass checkPool.
func hasRoom(slot model.Slot, day model.DayDefinition, occupants []model.Occupant) bool {
	return checkPool(slot, day, usageFor(occupants, slot.SlotDefinitionID, 0)) == nil
}
