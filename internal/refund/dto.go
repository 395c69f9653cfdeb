package refund

import (
	errors "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/core/common/validation"
)

type RequestRefundDTO struct {
	TransactionID int64   `json:"transaction_id" validate:"required,gt=0"`
	AmountCents   int64   `json:"amount_cents" validate:"required,gt=0"`
	Reason        string  `json:"reason" validate:"required,oneof=session_cancelled tutor_no_show quality_issue duplicate_charge other"`
	Description   *string `json:"description" validate:"omitempty,max=1000"`
	RefundMethod  string  `json:"refund_method" validate:"omitempty,oneof=original_method account_credit"`
}

func (d *RequestRefundDTO) Validate() *errors.AppError {
	return validation.ValidateStruct(d)
}

type DecideRefundDTO struct {
	Approve    bool    `json:"approve"`
	AdminNotes *string `json:"admin_notes" validate:"omitempty,max=1000"`
}

func (d *DecideRefundDTO) Validate() *errors.AppError {
	return validation.ValidateStruct(d)
}

type RefundListResponse struct {
	Refunds []*RefundRequest `json:"refunds"`
	Total   int              `json:"total"`
}
