package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/receipt"
)

// ReceiptUsers looks up the account printed on a receipt.
type ReceiptUsers interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// ReceiptService renders receipts of settled bookings for their owner.
type ReceiptService struct {
	transactions TransactionStore
	users        ReceiptUsers
	signer       *receipt.Signer
	calendar     Calendar
	log          *logger.Logger
}

func NewReceiptService(t TransactionStore, u ReceiptUsers, signer *receipt.Signer, cal Calendar, log *logger.Logger) *ReceiptService {
	if log == nil {
		log = logger.Discard()
	}
	return &ReceiptService{transactions: t, users: u, signer: signer, calendar: cal, log: log.With("component", "receipt")}
}

// BookingReceipt returns the PDF and a file name for a booking transaction
// owned by userID.
func (s *ReceiptService) BookingReceipt(ctx context.Context, userID, transactionID uint64) ([]byte, string, error) {
	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		if isNotFound(err) {
			return nil, "", apperror.NotFoundWithID("transaction", transactionID)
		}
		return nil, "", translate(s.log, "get transaction", err, "transaction_id", transactionID)
	}
	if t.UserID != userID {
		return nil, "", apperror.Forbidden("transaction belongs to another user")
	}
	if t.Type != model.TransactionBooking {
		return nil, "", apperror.NotFoundWithID("booking", transactionID)
	}
	lines, err := s.transactions.ReceiptLines(ctx, transactionID)
	if err != nil {
		return nil, "", translate(s.log, "receipt lines", err, "transaction_id", transactionID)
	}
	r := receipt.Receipt{Transaction: *t, Lines: lines, FundedBy: FundedByTokens, IssuedAt: s.calendar.Now().UTC()}
	if t.PlanID != nil {
		r.FundedBy = FundedByPlan
	}
	if u, err := s.users.GetByID(ctx, userID); err == nil {
		r.Email = u.Email
	}
	pdf, err := receipt.Render(r, s.signer)
	if err != nil {
		return nil, "", translate(s.log, "render receipt", err, "transaction_id", transactionID)
	}
	return pdf, fmt.Sprintf("receipt-%d.pdf", transactionID), nil
}
