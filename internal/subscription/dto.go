package subscription

import (
	errors "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/core/common/validation"
)

type CreatePlanDTO struct {
	Name           string `json:"name" validate:"required,max=100"`
	Description    string `json:"description" validate:"max=500"`
	PriceCents     int64  `json:"price_cents" validate:"gte=0"`
	Currency       string `json:"currency" validate:"required,len=3"`
	BillingPeriod  string `json:"billing_period" validate:"required,oneof=monthly yearly"`
	TrialDays      int    `json:"trial_days" validate:"gte=0,lte=90"`
	SessionCredits *int   `json:"session_credits" validate:"omitempty,gt=0"`
}

func (d *CreatePlanDTO) Validate() *errors.AppError {
	return validation.ValidateStruct(d)
}

type SubscribeDTO struct {
	PlanID          int64 `json:"plan_id" validate:"required,gt=0"`
	PaymentMethodID int64 `json:"payment_method_id" validate:"required,gt=0"`
}

func (d *SubscribeDTO) Validate() *errors.AppError {
	return validation.ValidateStruct(d)
}

type CancelDTO struct {
	Reason string `json:"reason" validate:"max=500"`
}

type PlanListResponse struct {
	Plans []*Plan `json:"plans"`
	Total int     `json:"total"`
}

type SubscriptionListResponse struct {
	Subscriptions []*Subscription `json:"subscriptions"`
	Total         int             `json:"total"`
}
