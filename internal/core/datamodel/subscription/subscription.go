package subscription

import (
	"time"
)

type Plan struct {
	ID             int64     `gorm:"primaryKey"`
	Name           string    `gorm:"column:name;not null;uniqueIndex"`
	Description    string    `gorm:"column:description"`
	PriceCents     int64     `gorm:"column:price_cents;not null"`
	Currency       string    `gorm:"column:currency;not null;default:USD"`
	BillingPeriod  string    `gorm:"column:billing_period;not null"`
	TrialDays      int       `gorm:"column:trial_days;not null;default:0"`
	SessionCredits *int      `gorm:"column:session_credits"`
	IsActive       bool      `gorm:"column:is_active;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;default:now()"`
}

func (Plan) TableName() string {
	return "plans"
}

// SessionCreditsRemaining mirrors the plan's credits at subscribe time;
// nil means unlimited.
type Subscription struct {
	ID                      int64      `gorm:"primaryKey"`
	OwnerID                 int64      `gorm:"column:owner_id;not null;index"`
	PlanID                  int64      `gorm:"column:plan_id;not null"`
	PaymentMethodID         int64      `gorm:"column:payment_method_id;not null"`
	Status                  string     `gorm:"column:status;not null"`
	StartDate               time.Time  `gorm:"column:start_date;not null"`
	EndDate                 time.Time  `gorm:"column:end_date;not null"`
	RenewalDate             time.Time  `gorm:"column:renewal_date;not null"`
	GraceUntil              *time.Time `gorm:"column:grace_until"`
	AutoRenew               bool       `gorm:"column:auto_renew;default:true"`
	SessionCreditsRemaining *int       `gorm:"column:session_credits_remaining"`
	LastTxnExternalID       *string    `gorm:"column:last_txn_external_id;index"`
	CancelReason            *string    `gorm:"column:cancel_reason"`
	CancelledAt             *time.Time `gorm:"column:cancelled_at"`
	CreatedAt               time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;default:now()"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
