package ledger

import (
	errors "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/core/common/validation"
)

// RecordTransactionDTO starts a charge. Zero amounts are legal (trial
// subscriptions) and settle without a processor round trip.
type RecordTransactionDTO struct {
	AmountCents     int64  `json:"amount_cents" validate:"gte=0"`
	Currency        string `json:"currency" validate:"required,len=3"`
	TxnType         string `json:"txn_type" validate:"required,oneof=session_payment subscription fee"`
	PaymentMethodID int64  `json:"payment_method_id" validate:"required,gt=0"`
	StudentID       *int64 `json:"student_id" validate:"omitempty,gt=0"`
}

func (d *RecordTransactionDTO) Validate() *errors.AppError {
	if err := validation.ValidateStruct(d); err != nil {
		return err
	}
	// Zero is reserved for trial subscription entries.
	if d.AmountCents == 0 && d.TxnType != TxnTypeSubscription {
		return errors.NewValidationFieldError("amount_cents", "amount must be positive for this transaction type", errors.ErrCodeInvalidAmount)
	}
	return nil
}

type HistoryQuery struct {
	TxnType string
	Status  string
	Limit   int
	Offset  int
}

func (q *HistoryQuery) Normalize() {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

type HistoryResponse struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int            `json:"total"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}
