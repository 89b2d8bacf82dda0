package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers raised when two transactions contend for the
// same rows.
const (
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
	erDupEntry        = 1062
)

// TxBeginner is satisfied by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// txOptions runs every transaction at READ COMMITTED so that reads issued
// after a lock is granted see rows committed by the previous holder.
var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// WithTx runs fn inside a READ COMMITTED transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func WithTx(ctx context.Context, db TxBeginner, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// IsLockConflict reports whether err is a deadlock or lock wait timeout. The
// losing transaction may be retried by the caller.
func IsLockConflict(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == erLockDeadlock || me.Number == erLockWaitTimeout
	}
	return false
}

// IsDuplicate reports whether err is a unique key violation.
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}
