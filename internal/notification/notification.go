package notification

import (
	"encoding/json"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	notifDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/notification"
)

const (
	NotifTypePaymentReceipt        = "payment_receipt"
	NotifTypePaymentFailed         = "payment_failed"
	NotifTypeRefundProcessed       = "refund_processed"
	NotifTypeLimitAlert            = "limit_alert"
	NotifTypeSubscriptionRenewed   = "subscription_renewed"
	NotifTypeSubscriptionCancelled = "subscription_cancelled"
	NotifTypeSubscriptionPastDue   = "subscription_past_due"
)

const (
	RecipientTypePayer    = "payer"
	RecipientTypeGuardian = "guardian"
)

var (
	ErrNotificationNotFound = errors.NewNotFoundError("notification not found", errors.ErrCodeNotifNotFound)
	ErrNotRecipient         = errors.NewForbiddenError("notification belongs to another recipient", errors.ErrCodeNotOwner)
)

type Notification struct {
	ID            int64           `json:"id"`
	ExternalID    string          `json:"external_id"`
	RecipientID   int64           `json:"recipient_id"`
	RecipientType string          `json:"recipient_type"`
	NotifType     string          `json:"notif_type"`
	Payload       json.RawMessage `json:"payload"`
	IsRead        bool            `json:"is_read"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	ReadAt        *time.Time      `json:"read_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func FromDataModel(model *notifDatamodel.Notification) *Notification {
	return &Notification{
		ID:            model.ID,
		ExternalID:    model.ExternalID,
		RecipientID:   model.RecipientID,
		RecipientType: model.RecipientType,
		NotifType:     model.NotifType,
		Payload:       model.Payload,
		IsRead:        model.IsRead,
		SentAt:        model.SentAt,
		ReadAt:        model.ReadAt,
		CreatedAt:     model.CreatedAt,
	}
}

func FromDataModelSlice(models []*notifDatamodel.Notification) []*Notification {
	result := make([]*Notification, 0, len(models))
	for _, model := range models {
		result = append(result, FromDataModel(model))
	}
	return result
}
