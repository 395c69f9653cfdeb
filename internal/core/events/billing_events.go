package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted      = "payment.completed"
	EventTypePaymentFailed         = "payment.failed"
	EventTypeRefundProcessed       = "refund.processed"
	EventTypeLimitReached          = "guardian.limit_reached"
	EventTypeSubscriptionRenewed   = "subscription.renewed"
	EventTypeSubscriptionCancelled = "subscription.cancelled"
	EventTypeSubscriptionPastDue   = "subscription.past_due"
)

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type PaymentCompletedEvent struct {
	BaseEvent
	TransactionID   int64  `json:"transaction_id"`
	ExternalID      string `json:"external_id"`
	PayerID         int64  `json:"payer_id"`
	StudentID       *int64 `json:"student_id,omitempty"`
	GuardianID      *int64 `json:"guardian_id,omitempty"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	TransactionType string `json:"transaction_type"`
}

func NewPaymentCompletedEvent(transactionID int64, externalID string, payerID int64, studentID, guardianID *int64, amountCents int64, currency, txnType string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: newBase(EventTypePaymentCompleted, map[string]interface{}{
			"transaction_id":   transactionID,
			"external_id":      externalID,
			"payer_id":         payerID,
			"amount_cents":     amountCents,
			"currency":         currency,
			"transaction_type": txnType,
		}),
		TransactionID:   transactionID,
		ExternalID:      externalID,
		PayerID:         payerID,
		StudentID:       studentID,
		GuardianID:      guardianID,
		AmountCents:     amountCents,
		Currency:        currency,
		TransactionType: txnType,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	TransactionID int64  `json:"transaction_id"`
	ExternalID    string `json:"external_id"`
	PayerID       int64  `json:"payer_id"`
	GuardianID    *int64 `json:"guardian_id,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
	FailureReason string `json:"failure_reason"`
}

func NewPaymentFailedEvent(transactionID int64, externalID string, payerID int64, guardianID *int64, amountCents int64, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: newBase(EventTypePaymentFailed, map[string]interface{}{
			"transaction_id": transactionID,
			"external_id":    externalID,
			"payer_id":       payerID,
			"amount_cents":   amountCents,
			"failure_reason": failureReason,
		}),
		TransactionID: transactionID,
		ExternalID:    externalID,
		PayerID:       payerID,
		GuardianID:    guardianID,
		AmountCents:   amountCents,
		FailureReason: failureReason,
	}
}

type RefundProcessedEvent struct {
	BaseEvent
	RefundID      int64  `json:"refund_id"`
	TransactionID int64  `json:"transaction_id"`
	RequesterID   int64  `json:"requester_id"`
	AmountCents   int64  `json:"amount_cents"`
	RefundMethod  string `json:"refund_method"`
}

func NewRefundProcessedEvent(refundID, transactionID, requesterID, amountCents int64, refundMethod string) *RefundProcessedEvent {
	return &RefundProcessedEvent{
		BaseEvent: newBase(EventTypeRefundProcessed, map[string]interface{}{
			"refund_id":      refundID,
			"transaction_id": transactionID,
			"requester_id":   requesterID,
			"amount_cents":   amountCents,
			"refund_method":  refundMethod,
		}),
		RefundID:      refundID,
		TransactionID: transactionID,
		RequesterID:   requesterID,
		AmountCents:   amountCents,
		RefundMethod:  refundMethod,
	}
}

// LimitReachedEvent fires when an accepted authorization exhausts the
// monthly limit, or an authorization is declined for exceeding it.
type LimitReachedEvent struct {
	BaseEvent
	GuardianID        int64 `json:"guardian_id"`
	StudentID         int64 `json:"student_id"`
	PaymentMethodID   int64 `json:"payment_method_id"`
	MonthlyLimitCents int64 `json:"monthly_limit_cents"`
	MonthSpendCents   int64 `json:"month_spend_cents"`
	Declined          bool  `json:"declined"`
}

func NewLimitReachedEvent(guardianID, studentID, methodID, limitCents, spendCents int64, declined bool) *LimitReachedEvent {
	return &LimitReachedEvent{
		BaseEvent: newBase(EventTypeLimitReached, map[string]interface{}{
			"guardian_id":         guardianID,
			"student_id":          studentID,
			"payment_method_id":   methodID,
			"monthly_limit_cents": limitCents,
			"month_spend_cents":   spendCents,
			"declined":            declined,
		}),
		GuardianID:        guardianID,
		StudentID:         studentID,
		PaymentMethodID:   methodID,
		MonthlyLimitCents: limitCents,
		MonthSpendCents:   spendCents,
		Declined:          declined,
	}
}

type SubscriptionRenewedEvent struct {
	BaseEvent
	SubscriptionID int64     `json:"subscription_id"`
	OwnerID        int64     `json:"owner_id"`
	PlanID         int64     `json:"plan_id"`
	NewRenewalDate time.Time `json:"new_renewal_date"`
	AmountCents    int64     `json:"amount_cents"`
}

func NewSubscriptionRenewedEvent(subscriptionID, ownerID, planID int64, newRenewalDate time.Time, amountCents int64) *SubscriptionRenewedEvent {
	return &SubscriptionRenewedEvent{
		BaseEvent: newBase(EventTypeSubscriptionRenewed, map[string]interface{}{
			"subscription_id":  subscriptionID,
			"owner_id":         ownerID,
			"plan_id":          planID,
			"new_renewal_date": newRenewalDate,
			"amount_cents":     amountCents,
		}),
		SubscriptionID: subscriptionID,
		OwnerID:        ownerID,
		PlanID:         planID,
		NewRenewalDate: newRenewalDate,
		AmountCents:    amountCents,
	}
}

type SubscriptionCancelledEvent struct {
	BaseEvent
	SubscriptionID int64     `json:"subscription_id"`
	OwnerID        int64     `json:"owner_id"`
	PlanID         int64     `json:"plan_id"`
	Reason         string    `json:"reason"`
	AccessUntil    time.Time `json:"access_until"`
}

func NewSubscriptionCancelledEvent(subscriptionID, ownerID, planID int64, reason string, accessUntil time.Time) *SubscriptionCancelledEvent {
	return &SubscriptionCancelledEvent{
		BaseEvent: newBase(EventTypeSubscriptionCancelled, map[string]interface{}{
			"subscription_id": subscriptionID,
			"owner_id":        ownerID,
			"plan_id":         planID,
			"reason":          reason,
			"access_until":    accessUntil,
		}),
		SubscriptionID: subscriptionID,
		OwnerID:        ownerID,
		PlanID:         planID,
		Reason:         reason,
		AccessUntil:    accessUntil,
	}
}

type SubscriptionPastDueEvent struct {
	BaseEvent
	SubscriptionID int64     `json:"subscription_id"`
	OwnerID        int64     `json:"owner_id"`
	PlanID         int64     `json:"plan_id"`
	GraceUntil     time.Time `json:"grace_until"`
	FailureReason  string    `json:"failure_reason"`
}

func NewSubscriptionPastDueEvent(subscriptionID, ownerID, planID int64, graceUntil time.Time, failureReason string) *SubscriptionPastDueEvent {
	return &SubscriptionPastDueEvent{
		BaseEvent: newBase(EventTypeSubscriptionPastDue, map[string]interface{}{
			"subscription_id": subscriptionID,
			"owner_id":        ownerID,
			"plan_id":         planID,
			"grace_until":     graceUntil,
			"failure_reason":  failureReason,
		}),
		SubscriptionID: subscriptionID,
		OwnerID:        ownerID,
		PlanID:         planID,
		GraceUntil:     graceUntil,
		FailureReason:  failureReason,
	}
}
