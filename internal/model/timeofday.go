package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is a wall-clock time expressed in minutes after midnight. It maps
// to MySQL TIME columns and renders as "HH:MM".
type TimeOfDay int

// MinutesPerDay bounds TimeOfDay values; 24:00 is accepted as a window end.
const MinutesPerDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS". Seconds are ignored.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || m < 0 || m > 59 || h*60+m > MinutesPerDay {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Scan implements sql.Scanner for TIME columns.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return t.Scan(string(v))
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case int64:
		*t = TimeOfDay(v)
		return nil
	case nil:
		*t = 0
		return nil
	}
	return fmt.Errorf("cannot scan %T into TimeOfDay", src)
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String() + ":00", nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is a half-open wall-clock interval [Start, End).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Valid reports whether the window has positive length.
func (w Window) Valid() bool { return w.Start < w.End }

// Overlaps uses the strict interval test: windows that only touch at an
// endpoint do not overlap.
func (w Window) Overlaps(o Window) bool {
	return o.Start < w.End && o.End > w.Start
}

// Contains reports whether o lies fully inside w.
func (w Window) Contains(o Window) bool {
	return o.Start >= w.Start && o.End <= w.End
}

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }
