package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// SignatureHeader carries "sha256=<hex HMAC of the raw body>".
const SignatureHeader = "Payment-Signature"

// EventPaymentSucceeded is the only event type that moves money.
const EventPaymentSucceeded = "payment_succeeded"

var (
	ErrNoSecret         = errors.New("webhook secret not configured")
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("signature mismatch")
)

// Event is a processor notification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		PaymentID   string `json:"payment_id"`
		AmountCents int64  `json:"amount"`
		Currency    string `json:"currency"`
	} `json:"data"`
}

// Sign returns the header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against body in constant time. An empty secret
// rejects every notification.
func Verify(secret string, body []byte, header string) error {
	if secret == "" {
		return ErrNoSecret
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	raw, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(raw)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// ParseEvent verifies and decodes a notification body.
func ParseEvent(secret string, body []byte, header string) (*Event, error) {
	if err := Verify(secret, body, header); err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if ev.Type == "" {
		return nil, errors.New("event type is required")
	}
	return &ev, nil
}
