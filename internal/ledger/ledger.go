package ledger

import (
	"encoding/json"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	txnDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/transaction"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

const (
	TxnTypeSessionPayment = "session_payment"
	TxnTypeSubscription   = "subscription"
	TxnTypeRefund         = "refund"
	TxnTypeFee            = "fee"
)

// Transaction is one ledger entry. Rows are never deleted; settlement
// and refunds only move the status forward.
type Transaction struct {
	ID                int64           `json:"id"`
	ExternalID        string          `json:"external_id"`
	PayerID           int64           `json:"payer_id"`
	StudentID         *int64          `json:"student_id,omitempty"`
	AmountCents       int64           `json:"amount_cents"`
	Currency          string          `json:"currency"`
	TxnType           string          `json:"txn_type"`
	Status            string          `json:"status"`
	PaymentMethodID   int64           `json:"payment_method_id"`
	ReservationID     *int64          `json:"reservation_id,omitempty"`
	RefundAmountCents int64           `json:"refund_amount_cents"`
	FailureReason     *string         `json:"failure_reason,omitempty"`
	ProcessorResponse json.RawMessage `json:"processor_response,omitempty"`
	SettledAt         *time.Time      `json:"settled_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RemainingRefundableCents is the amount still open for refund.
func (t *Transaction) RemainingRefundableCents() int64 {
	return t.AmountCents - t.RefundAmountCents
}

func (t *Transaction) IsSettled() bool {
	return t.Status != StatusPending
}

var (
	ErrTransactionNotFound = errors.NewNotFoundError("transaction not found", errors.ErrCodeTransactionNotFound)
	ErrNotPayer            = errors.NewForbiddenError("transaction belongs to another payer", errors.ErrCodeNotOwner)
	ErrAlreadySettled      = errors.NewInvalidStateError("transaction already settled with a different outcome", errors.ErrCodeAlreadySettled)
	ErrNotRefundable       = errors.NewInvalidStateError("only completed transactions can be refunded", errors.ErrCodeIllegalTransition)
	ErrRefundExceedsTotal  = errors.NewLimitExceededError("refund exceeds remaining refundable amount", errors.ErrCodeRefundExceedsTotal)
)

func FromDataModel(t *txnDatamodel.Transaction) *Transaction {
	return &Transaction{
		ID:                t.ID,
		ExternalID:        t.ExternalID,
		PayerID:           t.PayerID,
		StudentID:         t.StudentID,
		AmountCents:       t.AmountCents,
		Currency:          t.Currency,
		TxnType:           t.TxnType,
		Status:            t.Status,
		PaymentMethodID:   t.PaymentMethodID,
		ReservationID:     t.ReservationID,
		RefundAmountCents: t.RefundAmountCents,
		FailureReason:     t.FailureReason,
		ProcessorResponse: t.ProcessorResponse,
		SettledAt:         t.SettledAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func FromDataModelSlice(models []*txnDatamodel.Transaction) []*Transaction {
	result := make([]*Transaction, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m)
	}
	return result
}
