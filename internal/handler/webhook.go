package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/payment"
	"github.com/iliyamo/slot-reservation/internal/service"
)

type PaymentAPI interface {
	ApplyPaymentSucceeded(ctx context.Context, ev service.PaymentSucceeded) (bool, error)
}

// WebhookHandler receives payment processor notifications. It is mounted
// without JWT; the body signature authenticates the sender.
type WebhookHandler struct {
	Payments PaymentAPI
	Secret   string
	Log      *logger.Logger
}

func NewWebhookHandler(p PaymentAPI, secret string, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &WebhookHandler{Payments: p, Secret: secret, Log: log.With("component", "webhook")}
}

// Payment handles POST /v1/webhooks/payment. Event types other than
// payment_succeeded are acknowledged and ignored so the processor stops
// retrying them.
func (h *WebhookHandler) Payment(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return respondError(c, h.Log, apperror.Validation("unreadable body"))
	}
	ev, err := payment.ParseEvent(h.Secret, body, c.Request().Header.Get(payment.SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrNoSecret) {
			return respondError(c, h.Log, apperror.Store("verify webhook", err))
		}
		if errors.Is(err, payment.ErrMissingSignature) || errors.Is(err, payment.ErrBadSignature) {
			h.Log.Warn("webhook signature rejected", "error", err, "remote_addr", c.RealIP())
			return respondError(c, h.Log, apperror.Validation("invalid signature"))
		}
		return respondError(c, h.Log, apperror.Validationf("invalid event: %v", err))
	}

	if ev.Type != payment.EventPaymentSucceeded {
		h.Log.Info("webhook event ignored", "event_id", ev.ID, "type", ev.Type)
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
	applied, err := h.Payments.ApplyPaymentSucceeded(c.Request().Context(), service.PaymentSucceeded{
		ExternalPaymentID: ev.Data.PaymentID,
		AmountCents:       ev.Data.AmountCents,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "applied": applied})
}
