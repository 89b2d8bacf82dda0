package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// CartRepo stores the single live cart of each user.
type CartRepo struct {
	db *sql.DB
}

// NewCartRepo returns a new CartRepo bound to the given database.
func NewCartRepo(db *sql.DB) *CartRepo { return &CartRepo{db: db} }

// GetOrCreateForUpdateTx returns the user's cart, creating it on first use,
// and locks its row until tx ends. Concurrent cart requests of the same user
// therefore run one after the other.
func (r *CartRepo) GetOrCreateForUpdateTx(ctx context.Context, tx *sql.Tx, userID uint64) (*model.Cart, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO carts (user_id) VALUES (?) ON DUPLICATE KEY UPDATE id = id`, userID); err != nil {
		return nil, err
	}
	var (
		c   model.Cart
		svc sql.NullInt64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, service_id, updated_at FROM carts WHERE user_id = ? FOR UPDATE`, userID,
	).Scan(&c.ID, &c.UserID, &svc, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if svc.Valid {
		id := uint64(svc.Int64)
		c.ServiceID = &id
	}
	return &c, nil
}

// SetServiceTx records the service a cart is committed to; nil clears it.
func (r *CartRepo) SetServiceTx(ctx context.Context, tx *sql.Tx, cartID uint64, serviceID *uint64, at time.Time) error {
	var svc interface{}
	if serviceID != nil {
		svc = *serviceID
	}
	_, err := tx.ExecContext(ctx, `UPDATE carts SET service_id = ?, updated_at = ? WHERE id = ?`, svc, at, cartID)
	return err
}
