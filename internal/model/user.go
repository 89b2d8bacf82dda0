package model

import "time"

const (
	RoleCustomer = "CUSTOMER"
	RoleOwner    = "OWNER"
)

// User is an account. TokensCents is the prepaid balance spent by token
// checkouts and credited by top-ups; it never goes negative.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	TokensCents  int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAfford reports whether the balance covers amount.
func (u *User) CanAfford(amount int64) bool { return u.TokensCents >= amount }
