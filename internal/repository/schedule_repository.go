package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// ScheduleRepo reads and expands schedules: day definitions, slot
// definitions and the concrete dates and slots generated from them.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo returns a new ScheduleRepo bound to the given database.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

// DB exposes the handle so callers can begin expansion transactions.
func (r *ScheduleRepo) DB() *sql.DB { return r.db }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanDayDefinition(sc scanner) (model.DayDefinition, error) {
	var (
		dd  model.DayDefinition
		dow string
	)
	if err := sc.Scan(&dd.ID, &dd.ScheduleID, &dow, &dd.Window.Start, &dd.Window.End, &dd.Capacity); err != nil {
		return dd, err
	}
	wd, ok := model.ParseWeekday(dow)
	if !ok {
		return dd, fmt.Errorf("day definition %d: unknown weekday %q", dd.ID, dow)
	}
	dd.DayOfWeek = wd
	return dd, nil
}

const dayDefinitionColumns = `id, schedule_id, day_of_week, time_start, time_end, capacity`

// DayDefinitionTx returns the definition covering weekday for a schedule.
func (r *ScheduleRepo) DayDefinitionTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, weekday time.Weekday) (*model.DayDefinition, error) {
	q := `SELECT ` + dayDefinitionColumns + ` FROM day_definitions WHERE schedule_id = ? AND day_of_week = ?`
	dd, err := scanDayDefinition(tx.QueryRowContext(ctx, q, scheduleID, model.WeekdayName(weekday)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &dd, nil
}

func (r *ScheduleRepo) slotDefinitions(ctx context.Context, q queryer, dayDefIDs []uint64) (map[uint64][]model.SlotDefinition, error) {
	out := make(map[uint64][]model.SlotDefinition, len(dayDefIDs))
	if len(dayDefIDs) == 0 {
		return out, nil
	}
	query := `SELECT id, day_definition_id, start_time, end_time, duration_min, price_cents, capacity
FROM slot_definitions WHERE day_definition_id IN (` + placeholders(len(dayDefIDs)) + `) ORDER BY day_definition_id, start_time`
	rows, err := q.QueryContext(ctx, query, idArgs(dayDefIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sd model.SlotDefinition
		if err := rows.Scan(&sd.ID, &sd.DayDefinitionID, &sd.Window.Start, &sd.Window.End,
			&sd.DurationMinutes, &sd.PriceCents, &sd.Capacity); err != nil {
			return nil, err
		}
		out[sd.DayDefinitionID] = append(out[sd.DayDefinitionID], sd)
	}
	return out, rows.Err()
}

// LoadScheduleTx returns a schedule with every day definition and its slot
// definitions. The schedule row is locked so concurrent expansions of the
// same schedule serialize.
func (r *ScheduleRepo) LoadScheduleTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (*model.Schedule, error) {
	var s model.Schedule
	err := tx.QueryRowContext(ctx, `SELECT id, title FROM schedules WHERE id = ? FOR UPDATE`, scheduleID).Scan(&s.ID, &s.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `SELECT `+dayDefinitionColumns+` FROM day_definitions WHERE schedule_id = ? ORDER BY id`, scheduleID)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		dd, err := scanDayDefinition(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		s.DayDefinitions = append(s.DayDefinitions, dd)
		ids = append(ids, dd.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	defs, err := r.slotDefinitions(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for i := range s.DayDefinitions {
		s.DayDefinitions[i].SlotDefinitions = defs[s.DayDefinitions[i].ID]
	}
	return &s, nil
}

// GetDayDefinitionTx loads one day definition with its slot definitions and
// locks the row.
func (r *ScheduleRepo) GetDayDefinitionTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.DayDefinition, error) {
	dd, err := scanDayDefinition(tx.QueryRowContext(ctx, `SELECT `+dayDefinitionColumns+` FROM day_definitions WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defs, err := r.slotDefinitions(ctx, tx, []uint64{dd.ID})
	if err != nil {
		return nil, err
	}
	dd.SlotDefinitions = defs[dd.ID]
	return &dd, nil
}

// ScheduleOwnerID returns the user owning the institution whose service uses
// the schedule.
func (r *ScheduleRepo) ScheduleOwnerID(ctx context.Context, scheduleID uint64) (uint64, error) {
	const q = `SELECT i.owner_id FROM services sv JOIN institutions i ON i.id = sv.institution_id WHERE sv.schedule_id = ?`
	var owner uint64
	if err := r.db.QueryRowContext(ctx, q, scheduleID).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return owner, nil
}

// DayDefinitionOwnerID resolves the owner of a day definition's schedule.
func (r *ScheduleRepo) DayDefinitionOwnerID(ctx context.Context, dayDefID uint64) (uint64, error) {
	const q = `SELECT i.owner_id FROM day_definitions dd
JOIN services sv ON sv.schedule_id = dd.schedule_id
JOIN institutions i ON i.id = sv.institution_id
WHERE dd.id = ?`
	var owner uint64
	if err := r.db.QueryRowContext(ctx, q, dayDefID).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return owner, nil
}

// CreateSlotDefinitionsTx inserts definitions in one statement and fills in
// their ids. MySQL assigns consecutive ids to a multi-row insert under the
// default interleaved lock mode for simple inserts.
func (r *ScheduleRepo) CreateSlotDefinitionsTx(ctx context.Context, tx *sql.Tx, defs []model.SlotDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	query := `INSERT INTO slot_definitions (day_definition_id, start_time, end_time, duration_min, price_cents, capacity) VALUES `
	args := make([]interface{}, 0, len(defs)*6)
	for i, d := range defs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, d.DayDefinitionID, d.Window.Start, d.Window.End, d.DurationMinutes, d.PriceCents, d.Capacity)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i := range defs {
		defs[i].ID = uint64(first) + uint64(i)
	}
	return nil
}

// ExistingDatesTx returns the dates of a schedule already generated within
// [from, to], keyed by YYYY-MM-DD.
func (r *ScheduleRepo) ExistingDatesTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, from, to time.Time) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT date FROM dates WHERE schedule_id = ? AND date BETWEEN ? AND ?`,
		scheduleID, sqlDate(from), sqlDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out[sqlDate(d)] = true
	}
	return out, rows.Err()
}

// CreateDateTx inserts a date row and returns its id. A duplicate
// (schedule, date) yields ErrConflict.
func (r *ScheduleRepo) CreateDateTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, date time.Time) (uint64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO dates (schedule_id, date) VALUES (?, ?)`, scheduleID, sqlDate(date))
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateSlotsBulkTx inserts slots in a single statement. Passing an empty
// slice has no effect.
func (r *ScheduleRepo) CreateSlotsBulkTx(ctx context.Context, tx *sql.Tx, slots []model.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	query := `INSERT INTO slots (date_id, slot_definition_id, start_time, end_time, price_cents, capacity, available) VALUES `
	args := make([]interface{}, 0, len(slots)*7)
	for i, s := range slots {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, s.DateID, s.SlotDefinitionID, s.Window.Start, s.Window.End, s.PriceCents, s.Capacity, s.Available)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
