package refund

import (
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	refundDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/refund"
)

const (
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusProcessing = "processing"
	StatusRejected   = "rejected"
	StatusProcessed  = "processed"
	StatusCancelled  = "cancelled"
)

const (
	RefundMethodOriginal      = "original_method"
	RefundMethodAccountCredit = "account_credit"
)

// Reasons a requester can pick. Free-form detail goes in the
// description.
var ValidReasons = []string{
	"session_cancelled",
	"tutor_no_show",
	"quality_issue",
	"duplicate_charge",
	"other",
}

// RefundRequest walks pending -> approved -> processing -> processed,
// or ends at rejected / cancelled. Processing is the claim one worker
// holds while the money moves; processed and the two endings are
// terminal.
type RefundRequest struct {
	ID            int64      `json:"id"`
	TransactionID int64      `json:"transaction_id"`
	RequesterID   int64      `json:"requester_id"`
	AmountCents   int64      `json:"amount_cents"`
	Reason        string     `json:"reason"`
	Description   *string    `json:"description,omitempty"`
	Status        string     `json:"status"`
	RefundMethod  string     `json:"refund_method"`
	AdminNotes    *string    `json:"admin_notes,omitempty"`
	DecidedBy     *int64     `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsOpen reports whether the request still holds a claim on the
// transaction's refundable amount.
func (r *RefundRequest) IsOpen() bool {
	return r.Status == StatusPending || r.Status == StatusApproved || r.Status == StatusProcessing
}

var (
	ErrRefundNotFound     = errors.NewNotFoundError("refund request not found", errors.ErrCodeRefundNotFound)
	ErrNotRequester       = errors.NewForbiddenError("only the requester can cancel a refund request", errors.ErrCodeNotRequester)
	ErrDuplicateRequest   = errors.NewConflictError("transaction already has an open refund request", errors.ErrCodeDuplicateRefund)
	ErrNotPending         = errors.NewInvalidStateError("refund request is no longer pending", errors.ErrCodeIllegalTransition)
	ErrNotApproved        = errors.NewInvalidStateError("refund request is not approved", errors.ErrCodeIllegalTransition)
	ErrTxnNotRefundable   = errors.NewInvalidStateError("transaction is not eligible for refund", errors.ErrCodeIllegalTransition)
	ErrRefundExceedsTotal = errors.NewLimitExceededError("requested amount exceeds the remaining refundable amount", errors.ErrCodeRefundExceedsTotal)
)

func FromDataModel(r *refundDatamodel.RefundRequest) *RefundRequest {
	return &RefundRequest{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		RequesterID:   r.RequesterID,
		AmountCents:   r.AmountCents,
		Reason:        r.Reason,
		Description:   r.Description,
		Status:        r.Status,
		RefundMethod:  r.RefundMethod,
		AdminNotes:    r.AdminNotes,
		DecidedBy:     r.DecidedBy,
		DecidedAt:     r.DecidedAt,
		ProcessedAt:   r.ProcessedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func FromDataModelSlice(models []*refundDatamodel.RefundRequest) []*RefundRequest {
	result := make([]*RefundRequest, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m)
	}
	return result
}
