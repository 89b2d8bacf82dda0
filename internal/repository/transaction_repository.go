package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// TransactionRepo persists top-up and booking audit records.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to the given database.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, user_id, type, status, amount_cents, plan_id, external_payment_id, created_at, updated_at`

func scanTransaction(sc scanner) (*model.Transaction, error) {
	var (
		t      model.Transaction
		planID sql.NullInt64
		extID  sql.NullString
	)
	err := sc.Scan(&t.ID, &t.UserID, &t.Type, &t.Status, &t.AmountCents, &planID, &extID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if planID.Valid {
		id := uint64(planID.Int64)
		t.PlanID = &id
	}
	if extID.Valid {
		s := extID.String
		t.ExternalPaymentID = &s
	}
	return &t, nil
}

func nullableID(id *uint64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// CreateBookingTx inserts a booking transaction and links every reservation
// it settled. The generated id is written back to t.
func (r *TransactionRepo) CreateBookingTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, status, amount_cents, plan_id, created_at, updated_at) VALUES (?, 'booking', ?, ?, ?, ?, ?)`,
		t.UserID, t.Status, t.AmountCents, nullableID(t.PlanID), t.CreatedAt, t.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.Type = model.TransactionBooking
	t.UpdatedAt = t.CreatedAt
	if len(t.ReservationIDs) == 0 {
		return nil
	}
	query := `INSERT INTO transaction_reservations (transaction_id, reservation_id) VALUES `
	args := make([]interface{}, 0, len(t.ReservationIDs)*2)
	for i, rid := range t.ReservationIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, t.ID, rid)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// CreatePendingTopup records a top-up awaiting payment. A reused external
// payment id yields ErrConflict.
func (r *TransactionRepo) CreatePendingTopup(ctx context.Context, t *model.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, status, amount_cents, external_payment_id, created_at, updated_at) VALUES (?, 'topup', 'pending', ?, ?, ?, ?)`,
		t.UserID, t.AmountCents, nullableString(t.ExternalPaymentID), t.CreatedAt, t.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.Type = model.TransactionTopup
	t.Status = model.TransactionPending
	t.UpdatedAt = t.CreatedAt
	return nil
}

// GetByExternalIDForUpdateTx finds a transaction by payment processor id and
// locks it, so concurrent deliveries of one notification apply once.
func (r *TransactionRepo) GetByExternalIDForUpdateTx(ctx context.Context, tx *sql.Tx, externalID string) (*model.Transaction, error) {
	return scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_payment_id = ? FOR UPDATE`, externalID))
}

// MarkSuccessTx moves a pending transaction to success.
func (r *TransactionRepo) MarkSuccessTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = 'success', updated_at = ? WHERE id = ? AND status = 'pending'`, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// GetByID returns a transaction with its linked reservation ids.
func (r *TransactionRepo) GetByID(ctx context.Context, id uint64) (*model.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT reservation_id FROM transaction_reservations WHERE transaction_id = ? ORDER BY reservation_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rid uint64
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		t.ReservationIDs = append(t.ReservationIDs, rid)
	}
	return t, rows.Err()
}

// ReceiptLines returns the settled slots of a booking transaction.
func (r *TransactionRepo) ReceiptLines(ctx context.Context, transactionID uint64) ([]model.ReceiptLine, error) {
	const q = `SELECT r.id, d.date, s.start_time, s.end_time, s.price_cents, sv.title
FROM transaction_reservations tr
JOIN reservations r ON r.id = tr.reservation_id
JOIN slots s ON s.id = r.slot_id
JOIN dates d ON d.id = s.date_id
JOIN services sv ON sv.schedule_id = d.schedule_id
WHERE tr.transaction_id = ?
ORDER BY d.date, s.start_time, r.id`
	rows, err := r.db.QueryContext(ctx, q, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ReceiptLine
	for rows.Next() {
		var l model.ReceiptLine
		if err := rows.Scan(&l.ReservationID, &l.Date, &l.Window.Start, &l.Window.End, &l.PriceCents, &l.ServiceTitle); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
