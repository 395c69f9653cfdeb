package guardian

import (
	"time"
)

// Control attaches guardian spending rules to a payment method. Limits
// are nullable: nil means unlimited. Spend is tracked per billing
// month in the control's timezone; MonthKey is "YYYY-MM".
type Control struct {
	ID                       int64     `gorm:"primaryKey"`
	PaymentMethodID          int64     `gorm:"column:payment_method_id;not null;uniqueIndex"`
	GuardianID               int64     `gorm:"column:guardian_id;not null;index"`
	PerTransactionLimitCents *int64    `gorm:"column:per_transaction_limit_cents"`
	MonthlyLimitCents        *int64    `gorm:"column:monthly_limit_cents"`
	MonthSpendCents          int64     `gorm:"column:month_spend_cents;not null;default:0"`
	BillingTimezone          string    `gorm:"column:billing_timezone;not null;default:UTC"`
	MonthKey                 string    `gorm:"column:month_key;not null"`
	CreatedAt                time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt                time.Time `gorm:"column:updated_at;default:now()"`
}

func (Control) TableName() string {
	return "guardian_controls"
}

type Link struct {
	ID        int64     `gorm:"primaryKey"`
	ControlID int64     `gorm:"column:control_id;not null;uniqueIndex:idx_control_student"`
	StudentID int64     `gorm:"column:student_id;not null;uniqueIndex:idx_control_student"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
}

func (Link) TableName() string {
	return "guardian_links"
}

const (
	ReservationHeld      = "held"
	ReservationCommitted = "committed"
	ReservationReleased  = "released"
)

// Reservation is a provisional hold against the monthly limit, opened
// at authorization time and resolved when the transaction settles.
type Reservation struct {
	ID          int64     `gorm:"primaryKey"`
	ControlID   int64     `gorm:"column:control_id;not null;index"`
	StudentID   int64     `gorm:"column:student_id;not null"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	MonthKey    string    `gorm:"column:month_key;not null"`
	Status      string    `gorm:"column:status;not null;default:held"`
	CreatedAt   time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;default:now()"`
}

func (Reservation) TableName() string {
	return "guardian_reservations"
}
