package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/utils"
)

// UserRepo stores accounts and their token balance.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, password_hash, role, is_active, tokens_cents, created_at, updated_at`

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	err := sc.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.TokensCents, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetForUpdateTx fetches a user and locks the row, serializing settlement
// and top-up credit for that user.
func (r *UserRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? FOR UPDATE", id))
}

// DebitTokensTx subtracts amount from the balance only when it covers the
// amount. ok is false when the balance was too low and nothing changed.
func (r *UserRepo) DebitTokensTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET tokens_cents = tokens_cents - ? WHERE id=? AND tokens_cents >= ?",
		amount, id, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreditTokensTx adds amount to the balance.
func (r *UserRepo) CreditTokensTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET tokens_cents = tokens_cents + ? WHERE id=?", amount, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
