package subscription

import (
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	subDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/subscription"
)

const (
	StatusTrial     = "trial"
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

const (
	BillingPeriodMonthly = "monthly"
	BillingPeriodYearly  = "yearly"
)

// allowedTransitions is the lifecycle state machine. Expired is
// terminal; cancelled can come back while access lasts.
var allowedTransitions = map[string][]string{
	StatusTrial:     {StatusActive, StatusPastDue, StatusCancelled, StatusExpired},
	StatusActive:    {StatusActive, StatusPastDue, StatusCancelled, StatusExpired},
	StatusPastDue:   {StatusActive, StatusCancelled, StatusExpired},
	StatusCancelled: {StatusActive, StatusExpired},
	StatusExpired:   {},
}

func CanTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Plan struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PriceCents     int64     `json:"price_cents"`
	Currency       string    `json:"currency"`
	BillingPeriod  string    `json:"billing_period"`
	TrialDays      int       `json:"trial_days"`
	SessionCredits *int      `json:"session_credits,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Subscription struct {
	ID                      int64      `json:"id"`
	OwnerID                 int64      `json:"owner_id"`
	PlanID                  int64      `json:"plan_id"`
	PaymentMethodID         int64      `json:"payment_method_id"`
	Status                  string     `json:"status"`
	StartDate               time.Time  `json:"start_date"`
	EndDate                 time.Time  `json:"end_date"`
	RenewalDate             time.Time  `json:"renewal_date"`
	GraceUntil              *time.Time `json:"grace_until,omitempty"`
	AutoRenew               bool       `json:"auto_renew"`
	SessionCreditsRemaining *int       `json:"session_credits_remaining,omitempty"`
	CancelReason            *string    `json:"cancel_reason,omitempty"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// HasAccess reports whether the subscription still grants access at t.
// Cancelled subscriptions keep access until the paid period runs out.
func (s *Subscription) HasAccess(t time.Time) bool {
	switch s.Status {
	case StatusTrial, StatusActive, StatusPastDue:
		return true
	case StatusCancelled:
		return t.Before(s.EndDate)
	default:
		return false
	}
}

var (
	ErrPlanNotFound         = errors.NewNotFoundError("plan not found", errors.ErrCodePlanNotFound)
	ErrPlanInactive         = errors.NewConflictError("plan is no longer offered", errors.ErrCodePlanNotFound)
	ErrPlanNameTaken        = errors.NewConflictError("plan name already exists", errors.ErrCodePlanNotFound)
	ErrSubscriptionNotFound = errors.NewNotFoundError("subscription not found", errors.ErrCodeSubscriptionNotFound)
	ErrNotSubscriptionOwner = errors.NewForbiddenError("subscription belongs to another owner", errors.ErrCodeNotOwner)
	ErrAlreadySubscribed    = errors.NewConflictError("owner already has a live subscription to this plan", errors.ErrCodeSubscriptionNotFound)
	ErrRenewalNotDue        = errors.NewInvalidStateError("subscription is not due for renewal", errors.ErrCodeRenewalNotDue)
	ErrAutoRenewDisabled    = errors.NewInvalidStateError("auto-renew is disabled for this subscription", errors.ErrCodeRenewalNotDue)
	ErrSubscriptionExpired  = errors.NewInvalidStateError("subscription period has ended", errors.ErrCodeSubscriptionExpired)
	ErrNoSessionCredits     = errors.NewLimitExceededError("no session credits remaining", errors.ErrCodeNoSessionCredits)
)

func NewIllegalTransitionError(from, to string) *errors.AppError {
	return errors.NewInvalidStateError(
		"cannot move subscription from "+from+" to "+to,
		errors.ErrCodeIllegalTransition,
	)
}

// PeriodEnd advances a date by one billing period.
func PeriodEnd(from time.Time, billingPeriod string) time.Time {
	if billingPeriod == BillingPeriodYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func PlanFromDataModel(p *subDatamodel.Plan) *Plan {
	return &Plan{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		PriceCents:     p.PriceCents,
		Currency:       p.Currency,
		BillingPeriod:  p.BillingPeriod,
		TrialDays:      p.TrialDays,
		SessionCredits: p.SessionCredits,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func FromDataModel(s *subDatamodel.Subscription) *Subscription {
	return &Subscription{
		ID:                      s.ID,
		OwnerID:                 s.OwnerID,
		PlanID:                  s.PlanID,
		PaymentMethodID:         s.PaymentMethodID,
		Status:                  s.Status,
		StartDate:               s.StartDate,
		EndDate:                 s.EndDate,
		RenewalDate:             s.RenewalDate,
		GraceUntil:              s.GraceUntil,
		AutoRenew:               s.AutoRenew,
		SessionCreditsRemaining: s.SessionCreditsRemaining,
		CancelReason:            s.CancelReason,
		CancelledAt:             s.CancelledAt,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func FromDataModelSlice(models []*subDatamodel.Subscription) []*Subscription {
	result := make([]*Subscription, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m)
	}
	return result
}
