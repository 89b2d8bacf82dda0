package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// ReservationRepo provides the hold and confirm lifecycle of reservations.
// A held reservation carries the id of the cart holding it; confirmation
// clears the cart reference. All timestamp fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// ListHeldByUserTx returns the user's held reservations and locks them.
func (r *ReservationRepo) ListHeldByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]model.HeldReservation, error) {
	const q = `SELECT r.id, r.user_id, r.slot_id, r.cart_id, r.status, r.created_at,
       s.date_id, d.date, s.start_time, s.end_time
FROM reservations r
JOIN slots s ON s.id = r.slot_id
JOIN dates d ON d.id = s.date_id
WHERE r.user_id = ? AND r.status = 'held'
ORDER BY r.id
FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HeldReservation
	for rows.Next() {
		var (
			h      model.HeldReservation
			cartID sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &h.UserID, &h.SlotID, &cartID, &h.Status, &h.CreatedAt,
			&h.DateID, &h.Date, &h.Window.Start, &h.Window.End); err != nil {
			return nil, err
		}
		if cartID.Valid {
			id := uint64(cartID.Int64)
			h.CartID = &id
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CreateHeldTx inserts a held reservation for the cart. A second reservation
// of the same user on the same slot yields ErrConflict.
func (r *ReservationRepo) CreateHeldTx(ctx context.Context, tx *sql.Tx, cartID, userID, slotID uint64, at time.Time) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (user_id, slot_id, cart_id, status, created_at) VALUES (?, ?, ?, 'held', ?)`,
		userID, slotID, cartID, at)
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

// DeleteHeldTx releases held reservations of userID. Confirmed reservations
// are never touched. It returns the number of rows deleted.
func (r *ReservationRepo) DeleteHeldTx(ctx context.Context, tx *sql.Tx, userID uint64, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `DELETE FROM reservations WHERE user_id = ? AND status = 'held' AND id IN (` + placeholders(len(ids)) + `)`
	args := append([]interface{}{userID}, idArgs(ids)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConfirmTx promotes held reservations to confirmed. The caller compares the
// affected row count with len(ids) to detect a concurrent release.
func (r *ReservationRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, userID uint64, ids []uint64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE reservations SET status = 'confirmed', cart_id = NULL, confirmed_at = ?
WHERE user_id = ? AND status = 'held' AND id IN (` + placeholders(len(ids)) + `)`
	args := append([]interface{}{at, userID}, idArgs(ids)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListHeldSlots returns the user's held slots dated today or later, enriched
// with price and location fields.
func (r *ReservationRepo) ListHeldSlots(ctx context.Context, userID uint64, today time.Time) ([]model.HeldSlot, error) {
	const q = `SELECT r.id, s.id, d.date, s.start_time, s.end_time, s.price_cents, s.available,
       sv.id, sv.title, d.schedule_id, i.id, i.slug
FROM reservations r
JOIN slots s ON s.id = r.slot_id
JOIN dates d ON d.id = s.date_id
JOIN services sv ON sv.schedule_id = d.schedule_id
JOIN institutions i ON i.id = sv.institution_id
WHERE r.user_id = ? AND r.status = 'held' AND d.date >= ?
ORDER BY d.date, s.start_time, r.id`
	rows, err := r.db.QueryContext(ctx, q, userID, sqlDate(today))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.HeldSlot, 0)
	for rows.Next() {
		var (
			h    model.HeldSlot
			date time.Time
		)
		if err := rows.Scan(&h.ReservationID, &h.SlotID, &date, &h.StartTime, &h.EndTime, &h.PriceCents,
			&h.Available, &h.ServiceID, &h.ServiceTitle, &h.ScheduleID, &h.InstitutionID, &h.InstitutionSlug); err != nil {
			return nil, err
		}
		h.Date = sqlDate(date)
		h.Price = model.FormatCents(h.PriceCents)
		out = append(out, h)
	}
	return out, rows.Err()
}
