package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// SlotRepo is the slot inventory store. Reads outside a transaction serve
// listings; the Tx methods serve the cart and checkout transactions, which
// serialize on the date row before counting occupancy.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotDetailSelect = `SELECT s.id, s.date_id, s.slot_definition_id, s.start_time, s.end_time,
       s.price_cents, s.capacity, s.available,
       d.date, d.schedule_id,
       sv.id, sv.title, sv.sport,
       i.id, i.slug, i.days_in_advance_to_reserve, i.total_reservations_per_day
FROM slots s
JOIN dates d ON d.id = s.date_id
JOIN services sv ON sv.schedule_id = d.schedule_id
JOIN institutions i ON i.id = sv.institution_id`

func scanSlotDetail(sc scanner) (model.SlotDetail, error) {
	var (
		det   model.SlotDetail
		sport sql.NullString
	)
	err := sc.Scan(
		&det.ID, &det.DateID, &det.SlotDefinitionID, &det.Window.Start, &det.Window.End,
		&det.PriceCents, &det.Capacity, &det.Available,
		&det.Date, &det.ScheduleID,
		&det.ServiceID, &det.ServiceTitle, &sport,
		&det.InstitutionID, &det.InstitutionSlug, &det.DaysInAdvanceToReserve, &det.ReservationsPerDay,
	)
	if err != nil {
		return det, err
	}
	if sport.Valid {
		s := sport.String
		det.Sport = &s
	}
	return det, nil
}

// GetSlot returns one slot with its date, service and institution.
func (r *SlotRepo) GetSlot(ctx context.Context, id uint64) (*model.SlotDetail, error) {
	det, err := scanSlotDetail(r.db.QueryRowContext(ctx, slotDetailSelect+` WHERE s.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &det, nil
}

// GetDetailsTx loads the given slots inside tx. Missing ids are simply
// absent from the result; callers compare lengths.
func (r *SlotRepo) GetDetailsTx(ctx context.Context, tx *sql.Tx, ids []uint64) ([]model.SlotDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := slotDetailSelect + ` WHERE s.id IN (` + placeholders(len(ids)) + `) ORDER BY d.date, s.start_time, s.id`
	rows, err := tx.QueryContext(ctx, q, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SlotDetail
	for rows.Next() {
		det, err := scanSlotDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, det)
	}
	return out, rows.Err()
}

// ListCandidateSlots returns every slot of a service between from and to,
// inclusive, ordered by date and start time.
func (r *SlotRepo) ListCandidateSlots(ctx context.Context, serviceID uint64, from, to time.Time) ([]model.SlotDetail, error) {
	q := slotDetailSelect + ` WHERE sv.id = ? AND d.date BETWEEN ? AND ? ORDER BY d.date, s.start_time, s.id`
	rows, err := r.db.QueryContext(ctx, q, serviceID, sqlDate(from), sqlDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SlotDetail, 0)
	for rows.Next() {
		det, err := scanSlotDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, det)
	}
	return out, rows.Err()
}

// LockDateTx takes an exclusive row lock on a date. Every hold, release and
// confirmation touching slots of that date runs after this lock, so the
// occupancy count read afterwards cannot change until tx ends.
func (r *SlotRepo) LockDateTx(ctx context.Context, tx *sql.Tx, dateID uint64) error {
	var id uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM dates WHERE id = ? FOR UPDATE`, dateID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// IntersectingOccupancyTx lists held and confirmed reservations on slots of
// dateID whose window strictly overlaps w. Touching endpoints do not count.
// The rows are read with a shared lock so the result reflects the latest
// committed state rather than the transaction snapshot.
func (r *SlotRepo) IntersectingOccupancyTx(ctx context.Context, tx *sql.Tx, dateID uint64, w model.Window) ([]model.Occupant, error) {
	const q = `SELECT r.id, r.user_id, s.id, s.slot_definition_id
FROM reservations r
JOIN slots s ON s.id = r.slot_id
WHERE s.date_id = ? AND s.start_time < ? AND s.end_time > ?
ORDER BY r.id
FOR SHARE`
	rows, err := tx.QueryContext(ctx, q, dateID, w.End, w.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Occupant
	for rows.Next() {
		var o model.Occupant
		if err := rows.Scan(&o.ReservationID, &o.UserID, &o.SlotID, &o.SlotDefinitionID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// IntersectingSlotIDsTx lists the slots of dateID whose window strictly
// overlaps w. These are the slots whose availability may change when a
// reservation inside w comes or goes.
func (r *SlotRepo) IntersectingSlotIDsTx(ctx context.Context, tx *sql.Tx, dateID uint64, w model.Window) ([]uint64, error) {
	const q = `SELECT id FROM slots WHERE date_id = ? AND start_time < ? AND end_time > ? ORDER BY id`
	rows, err := tx.QueryContext(ctx, q, dateID, w.End, w.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetAvailabilityTx writes the cached availability flag. It reports whether
// the stored value actually changed.
func (r *SlotRepo) SetAvailabilityTx(ctx context.Context, tx *sql.Tx, slotID uint64, available bool) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE slots SET available = ? WHERE id = ? AND available <> ?`, available, slotID, available)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
