package model

import "time"

// Schedule is the template owner for a service. It holds one DayDefinition per
// weekday and the concrete Dates generated from them.
type Schedule struct {
	ID             uint64          // schedules.id
	Title          string          // schedules.title
	DayDefinitions []DayDefinition // day_definitions.schedule_id
}

// DayFor returns the day definition covering weekday, if any.
func (s Schedule) DayFor(weekday time.Weekday) (DayDefinition, bool) {
	for _, d := range s.DayDefinitions {
		if d.DayOfWeek == weekday {
			return d, true
		}
	}
	return DayDefinition{}, false
}

// DayDefinition describes the opening window of one weekday and the capacity
// of the overlap pool shared by every slot generated for that day.
//
// Fields:
//  ID              – primary key identifier.
//  ScheduleID      – owning schedule.
//  DayOfWeek       – weekday covered (unique per schedule).
//  Window          – opening hours; slots must lie fully inside.
//  Capacity        – total reservations allowed at any overlapping instant.
//  SlotDefinitions – recurring slot templates for this weekday.
type DayDefinition struct {
	ID              uint64           // day_definitions.id
	ScheduleID      uint64           // day_definitions.schedule_id
	DayOfWeek       time.Weekday     // day_definitions.day_of_week
	Window          Window           // day_definitions.time_start, time_end
	Capacity        int              // day_definitions.capacity
	SlotDefinitions []SlotDefinition // slot_definitions.day_definition_id
}

// SlotDefinition is a recurring time window template.
type SlotDefinition struct {
	ID              uint64 // slot_definitions.id
	DayDefinitionID uint64 // slot_definitions.day_definition_id
	Window          Window // slot_definitions.start_time, end_time
	DurationMinutes int    // slot_definitions.duration_min
	PriceCents      int64  // slot_definitions.price_cents
	Capacity        int    // slot_definitions.capacity
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lowercase weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdayNames[name]
	return d, ok
}

// WeekdayName is the lowercase name stored in day_definitions.day_of_week.
func WeekdayName(d time.Weekday) string {
	for name, wd := range weekdayNames {
		if wd == d {
			return name
		}
	}
	return ""
}
