package guardian

import (
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/core/common/validation"
)

type EnableControlDTO struct {
	PaymentMethodID          int64  `json:"payment_method_id" validate:"required,gt=0"`
	PerTransactionLimitCents *int64 `json:"per_transaction_limit_cents" validate:"omitempty,gt=0"`
	MonthlyLimitCents        *int64 `json:"monthly_limit_cents" validate:"omitempty,gt=0"`
	BillingTimezone          string `json:"billing_timezone"`
}

func (d *EnableControlDTO) Validate() *errors.AppError {
	if err := validation.ValidateStruct(d); err != nil {
		return err
	}
	if d.BillingTimezone == "" {
		d.BillingTimezone = "UTC"
	}
	if _, err := time.LoadLocation(d.BillingTimezone); err != nil {
		return errors.NewValidationFieldError("billing_timezone", "unknown timezone", errors.ErrCodeValidationFailed)
	}
	return nil
}

// SetLimitsDTO replaces both limits. A nil limit removes it. Lowering
// a limit below spend already recorded this month is allowed; it only
// blocks further charges.
type SetLimitsDTO struct {
	PerTransactionLimitCents *int64 `json:"per_transaction_limit_cents" validate:"omitempty,gt=0"`
	MonthlyLimitCents        *int64 `json:"monthly_limit_cents" validate:"omitempty,gt=0"`
}

func (d *SetLimitsDTO) Validate() *errors.AppError {
	return validation.ValidateStruct(d)
}

type LinkStudentDTO struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
}

func (d *LinkStudentDTO) Validate() *errors.AppError {
	return validation.ValidateStruct(d)
}

type ControlListResponse struct {
	Controls []*Control `json:"controls"`
	Total    int        `json:"total"`
}
