package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// PlanRepo manages the quota of plans owned by users.
type PlanRepo struct {
	db *sql.DB
}

// NewPlanRepo returns a new PlanRepo bound to the given database.
func NewPlanRepo(db *sql.DB) *PlanRepo { return &PlanRepo{db: db} }

const userPlanSelect = `SELECT up.id, up.user_id, up.total_reservations,
       p.id, p.title, p.institution_id, p.sport, p.total_reservations,
       p.total_reservations_per_day, p.days_in_advance_to_reserve
FROM user_plans up
JOIN plans p ON p.id = up.plan_id
WHERE up.user_id = ? AND up.plan_id = ?`

func scanUserPlan(sc scanner) (*model.UserPlan, error) {
	var (
		up    model.UserPlan
		inst  sql.NullInt64
		sport sql.NullString
	)
	err := sc.Scan(&up.ID, &up.UserID, &up.TotalReservations,
		&up.Plan.ID, &up.Plan.Title, &inst, &sport, &up.Plan.TotalReservations,
		&up.Plan.TotalReservationsPerDay, &up.Plan.DaysInAdvanceToReserve)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inst.Valid {
		id := uint64(inst.Int64)
		up.Plan.InstitutionID = &id
	}
	if sport.Valid {
		s := sport.String
		up.Plan.Sport = &s
	}
	return &up, nil
}

// GetUserPlanTx reads the user's link to planID without locking it.
func (r *PlanRepo) GetUserPlanTx(ctx context.Context, tx *sql.Tx, userID, planID uint64) (*model.UserPlan, error) {
	return scanUserPlan(tx.QueryRowContext(ctx, userPlanSelect, userID, planID))
}

// GetUserPlanForUpdateTx reads the user's link to planID and locks it so the
// quota cannot be spent twice.
func (r *PlanRepo) GetUserPlanForUpdateTx(ctx context.Context, tx *sql.Tx, userID, planID uint64) (*model.UserPlan, error) {
	return scanUserPlan(tx.QueryRowContext(ctx, userPlanSelect+` FOR UPDATE`, userID, planID))
}

// UpdateRemainingTx stores the remaining quota of a user plan.
func (r *PlanRepo) UpdateRemainingTx(ctx context.Context, tx *sql.Tx, userPlanID uint64, remaining int) error {
	res, err := tx.ExecContext(ctx, `UPDATE user_plans SET total_reservations = ? WHERE id = ?`, remaining, userPlanID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUserPlanTx removes a consumed plan link.
func (r *PlanRepo) DeleteUserPlanTx(ctx context.Context, tx *sql.Tx, userPlanID uint64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM user_plans WHERE id = ?`, userPlanID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
