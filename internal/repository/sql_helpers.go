package repository

import (
	"strings"
	"time"

	"github.com/iliyamo/slot-reservation/internal/database"
)

const dateLayout = "2006-01-02"

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func sqlDate(t time.Time) string { return t.Format(dateLayout) }

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func isDuplicate(err error) bool { return database.IsDuplicate(err) }
