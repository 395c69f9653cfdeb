package guardian

import (
	"fmt"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	guardianDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/guardian"
)

// Control is a guardian's spending policy over one payment method.
// Nil limits mean unlimited. MonthSpendCents counts settled spend plus
// open holds for the month named by MonthKey.
type Control struct {
	ID                       int64     `json:"id"`
	PaymentMethodID          int64     `json:"payment_method_id"`
	GuardianID               int64     `json:"guardian_id"`
	PerTransactionLimitCents *int64    `json:"per_transaction_limit_cents"`
	MonthlyLimitCents        *int64    `json:"monthly_limit_cents"`
	MonthSpendCents          int64     `json:"month_spend_cents"`
	BillingTimezone          string    `json:"billing_timezone"`
	MonthKey                 string    `json:"month_key"`
	LinkedStudentIDs         []int64   `json:"linked_student_ids,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Authorization is the outcome of a successful charge check. When the
// payment method has no control, both IDs are nil and the charge
// proceeds unreserved.
type Authorization struct {
	ControlID     *int64
	ReservationID *int64
}

var (
	ErrControlNotFound     = errors.NewNotFoundError("guardian control not found", errors.ErrCodeControlNotFound)
	ErrControlExists       = errors.NewConflictError("payment method already has a guardian control", errors.ErrCodeControlNotFound)
	ErrReservationNotFound = errors.NewNotFoundError("spend reservation not found", errors.ErrCodeControlNotFound)
	ErrNotControlOwner     = errors.NewForbiddenError("control belongs to another guardian", errors.ErrCodeNotOwner)
	ErrStudentNotLinked    = errors.NewForbiddenError("student is not linked to this payment method", errors.ErrCodeStudentNotLinked)
)

func NewPerTxnLimitError(limitCents, amountCents int64) *errors.AppError {
	return errors.NewLimitExceededError(
		fmt.Sprintf("amount %d exceeds per-transaction limit %d", amountCents, limitCents),
		errors.ErrCodePerTxnLimit,
	)
}

func NewMonthlyLimitError(limitCents int64) *errors.AppError {
	return errors.NewLimitExceededError(
		fmt.Sprintf("charge would exceed monthly limit %d", limitCents),
		errors.ErrCodeMonthlyLimit,
	)
}

// MonthKeyFor renders the billing month of t in the control's
// timezone. An unknown timezone falls back to UTC rather than failing
// the charge.
func MonthKeyFor(t time.Time, timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01")
}

func FromDataModel(c *guardianDatamodel.Control) *Control {
	return &Control{
		ID:                       c.ID,
		PaymentMethodID:          c.PaymentMethodID,
		GuardianID:               c.GuardianID,
		PerTransactionLimitCents: c.PerTransactionLimitCents,
		MonthlyLimitCents:        c.MonthlyLimitCents,
		MonthSpendCents:          c.MonthSpendCents,
		BillingTimezone:          c.BillingTimezone,
		MonthKey:                 c.MonthKey,
		CreatedAt:                c.CreatedAt,
		UpdatedAt:                c.UpdatedAt,
	}
}
