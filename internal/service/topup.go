package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/database"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/payment"
	"github.com/iliyamo/slot-reservation/internal/repository"
	"github.com/iliyamo/slot-reservation/internal/validator"
)

type TopupInput struct {
	Tokens string `json:"tokens" validate:"required,decimal2"`
}

type TopupResult struct {
	ClientSecret  string `json:"client_secret"`
	TransactionID uint64 `json:"transaction_id"`
	Tokens        string `json:"tokens"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// PaymentSucceeded is a verified notification from the processor.
type PaymentSucceeded struct {
	ExternalPaymentID string
	AmountCents       int64
}

// TopupService buys tokens through the payment gateway and credits them
// when the processor confirms the payment.
type TopupService struct {
	db           database.TxBeginner
	users        UserStore
	transactions TransactionStore
	gateway      payment.Gateway
	currency     string
	calendar     Calendar
	validate     *validator.Validator
	locker       Locker
	lockTTL      time.Duration
	log          *logger.Logger
}

type TopupDeps struct {
	DB           database.TxBeginner
	Users        UserStore
	Transactions TransactionStore
	Gateway      payment.Gateway
	Currency     string
	Calendar     Calendar
	Validator    *validator.Validator
	Locker       Locker
	LockTTL      time.Duration
	Log          *logger.Logger
}

func NewTopupService(d TopupDeps) *TopupService {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Locker == nil {
		d.Locker = NewRedisLocker(nil)
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 10 * time.Second
	}
	if d.Currency == "" {
		d.Currency = "eur"
	}
	return &TopupService{
		db:           d.DB,
		users:        d.Users,
		transactions: d.Transactions,
		gateway:      d.Gateway,
		currency:     d.Currency,
		calendar:     d.Calendar,
		validate:     d.Validator,
		locker:       d.Locker,
		lockTTL:      d.LockTTL,
		log:          d.Log.With("component", "topup"),
	}
}

// BeginTopup creates a payment intent and records a pending top-up linked to
// the intent id.
func (s *TopupService) BeginTopup(ctx context.Context, userID uint64, in TopupInput) (*TopupResult, error) {
	if userID == 0 {
		return nil, apperror.Forbidden("authentication required")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	amount, err := model.ParseCents(in.Tokens)
	if err != nil {
		return nil, apperror.Validationf("tokens: %v", err)
	}
	if amount <= 0 {
		return nil, apperror.Validation("tokens must be greater than 0")
	}

	intent, err := s.gateway.CreateIntent(ctx, userID, amount, s.currency)
	if err != nil {
		s.log.Error("create payment intent failed", "user_id", userID, "amount_cents", amount, "error", err)
		return nil, apperror.Store("create payment intent", err)
	}
	ext := intent.ID
	t := &model.Transaction{
		UserID:            userID,
		AmountCents:       amount,
		ExternalPaymentID: &ext,
		CreatedAt:         s.calendar.Now().UTC(),
	}
	if err := s.transactions.CreatePendingTopup(ctx, t); err != nil {
		return nil, translate(s.log, "create pending topup", err, "user_id", userID, "payment_id", ext)
	}
	s.log.Info("topup started", "user_id", userID, "transaction_id", t.ID, "amount_cents", amount, "payment_id", ext)
	return &TopupResult{
		ClientSecret:  intent.ClientSecret,
		TransactionID: t.ID,
		Tokens:        model.FormatCents(amount),
		Amount:        amount,
		Currency:      s.currency,
	}, nil
}

// ApplyPaymentSucceeded credits a pending top-up exactly once. Unknown
// payment ids and already settled transactions are acknowledged without
// effect; applied reports whether tokens were credited.
func (s *TopupService) ApplyPaymentSucceeded(ctx context.Context, ev PaymentSucceeded) (applied bool, err error) {
	if ev.ExternalPaymentID == "" {
		return false, apperror.Validation("payment id is required")
	}
	if ev.AmountCents < 0 {
		return false, apperror.Validation("amount cannot be negative")
	}
	now := s.calendar.Now().UTC()
	var t *model.Transaction

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		t, err = s.transactions.GetByExternalIDForUpdateTx(ctx, tx, ev.ExternalPaymentID)
		if errors.Is(err, repository.ErrNotFound) {
			t = nil
			return nil
		}
		if err != nil {
			return err
		}
		if t.Type != model.TransactionTopup || t.Status == model.TransactionSuccess {
			return nil
		}
		release, err := lockUser(ctx, s.locker, s.log, t.UserID, s.lockTTL)
		if err != nil {
			return err
		}
		defer release()

		amount := ev.AmountCents
		if amount == 0 {
			amount = t.AmountCents
		} else if amount != t.AmountCents {
			s.log.Warn("payment amount differs from pending topup",
				"payment_id", ev.ExternalPaymentID,
				"transaction_id", t.ID,
				"pending_cents", t.AmountCents,
				"paid_cents", amount,
			)
		}
		if _, err := s.users.GetForUpdateTx(ctx, tx, t.UserID); err != nil {
			return err
		}
		if err := s.users.CreditTokensTx(ctx, tx, t.UserID, amount); err != nil {
			return err
		}
		if err := s.transactions.MarkSuccessTx(ctx, tx, t.ID, now); err != nil {
			return err
		}
		t.AmountCents = amount
		applied = true
		return nil
	})
	if err != nil {
		return false, translate(s.log, "apply payment", err, "payment_id", ev.ExternalPaymentID)
	}
	switch {
	case t == nil:
		s.log.Warn("payment for unknown transaction ignored", "payment_id", ev.ExternalPaymentID)
	case !applied:
		s.log.Info("duplicate payment notification ignored", "payment_id", ev.ExternalPaymentID, "transaction_id", t.ID)
	default:
		s.log.Info("topup credited", "user_id", t.UserID, "transaction_id", t.ID, "amount_cents", t.AmountCents)
	}
	return applied, nil
}
