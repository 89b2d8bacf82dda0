// Package payment fronts the external payment processor: creating payment
// intents for token top-ups and verifying signed payment notifications.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Intent is a payment the client completes with the processor.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

// Gateway creates payment intents.
type Gateway interface {
	CreateIntent(ctx context.Context, userID uint64, amountCents int64, currency string) (Intent, error)
}

// LocalGateway mints intents locally. Settlement arrives through the signed
// webhook like it would from a hosted processor.
type LocalGateway struct{}

func NewLocalGateway() *LocalGateway { return &LocalGateway{} }

func (g *LocalGateway) CreateIntent(ctx context.Context, userID uint64, amountCents int64, currency string) (Intent, error) {
	if amountCents <= 0 {
		return Intent{}, errors.New("amount must be positive")
	}
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	id := "pi_" + uuid.NewString()
	return Intent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, uuid.NewString()),
		AmountCents:  amountCents,
		Currency:     currency,
	}, nil
}
