package processor

import (
	"errors"
)

// Outcome of a processor call. Declined is terminal for the
// transaction; errors carry a retryable flag and retries reuse the
// same idempotency key.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeDeclined Outcome = "declined"
	OutcomeError    Outcome = "error"
)

type CaptureRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	MethodRef      string `json:"method_ref"`
}

func (r *CaptureRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return errors.New("idempotency_key is required")
	}
	if r.AmountCents <= 0 {
		return errors.New("amount_cents must be positive")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

type RefundRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	CaptureKey     string `json:"capture_key"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
}

func (r *RefundRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return errors.New("idempotency_key is required")
	}
	if r.CaptureKey == "" {
		return errors.New("capture_key is required")
	}
	if r.AmountCents <= 0 {
		return errors.New("amount_cents must be positive")
	}
	return nil
}

type Result struct {
	Outcome     Outcome `json:"outcome"`
	Reason      string  `json:"reason,omitempty"`
	Retryable   bool    `json:"retryable,omitempty"`
	ProviderRef string  `json:"provider_ref,omitempty"`
}

func (r *Result) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}
