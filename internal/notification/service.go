package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	notifDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
)

// RepositoryAPI persists notifications. Create reports whether a row
// was inserted; a duplicate external_id is silently skipped so
// at-least-once event delivery never produces duplicate notifications.
type RepositoryAPI interface {
	Create(notification *notifDatamodel.Notification) (bool, error)
	GetByID(id int64) (*notifDatamodel.Notification, error)
	ListByRecipient(recipientID int64, unreadOnly bool) ([]*notifDatamodel.Notification, error)
	CountUnread(recipientID int64) (int64, error)
	MarkRead(id, recipientID int64, readAt time.Time) (bool, error)
	MarkAllRead(recipientID int64, readAt time.Time) (int64, error)
	MarkSent(id int64, sentAt time.Time) error
}

// SenderAPI pushes a stored notification to an external transport.
// Delivery is best effort; the row stays queryable either way.
type SenderAPI interface {
	Send(ctx context.Context, notification *Notification) error
}

type Service struct {
	repo   RepositoryAPI
	sender SenderAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, sender SenderAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterEventHandlers wires the dispatcher into every billing event
// the engine publishes.
func (s *Service) RegisterEventHandlers(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventTypePaymentCompleted,
		events.EventTypePaymentFailed,
		events.EventTypeRefundProcessed,
		events.EventTypeLimitReached,
		events.EventTypeSubscriptionRenewed,
		events.EventTypeSubscriptionCancelled,
		events.EventTypeSubscriptionPastDue,
	} {
		bus.Subscribe(eventType, s.Dispatch)
	}
}

type delivery struct {
	recipientID   int64
	recipientType string
	notifType     string
}

// Dispatch fans one billing event out into per-recipient notification
// rows and forwards each new row to the configured transport.
func (s *Service) Dispatch(ctx context.Context, event events.Event) error {
	deliveries := recipientsFor(event)
	if len(deliveries) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID(), err)
	}

	for _, d := range deliveries {
		model := &notifDatamodel.Notification{
			ExternalID:    fmt.Sprintf("%s:%d", event.EventID(), d.recipientID),
			RecipientID:   d.recipientID,
			RecipientType: d.recipientType,
			NotifType:     d.notifType,
			Payload:       payload,
			CreatedAt:     s.now(),
		}

		created, err := s.repo.Create(model)
		if err != nil {
			s.logger.Error("failed to store notification",
				"error", err,
				"event_id", event.EventID(),
				"recipient_id", d.recipientID)
			return err
		}
		if !created {
			s.logger.Debug("duplicate notification skipped",
				"external_id", model.ExternalID)
			continue
		}

		s.logger.Info("notification created",
			"notification_id", model.ID,
			"notif_type", d.notifType,
			"recipient_id", d.recipientID)

		s.send(ctx, model)
	}

	return nil
}

func (s *Service) send(ctx context.Context, model *notifDatamodel.Notification) {
	if s.sender == nil {
		return
	}

	if err := s.sender.Send(ctx, FromDataModel(model)); err != nil {
		s.logger.Warn("notification transport send failed",
			"error", err,
			"notification_id", model.ID)
		return
	}

	if err := s.repo.MarkSent(model.ID, s.now()); err != nil {
		s.logger.Error("failed to mark notification sent",
			"error", err,
			"notification_id", model.ID)
	}
}

func recipientsFor(event events.Event) []delivery {
	switch e := event.(type) {
	case *events.PaymentCompletedEvent:
		return []delivery{{e.PayerID, RecipientTypePayer, NotifTypePaymentReceipt}}
	case *events.PaymentFailedEvent:
		deliveries := []delivery{{e.PayerID, RecipientTypePayer, NotifTypePaymentFailed}}
		if e.GuardianID != nil && *e.GuardianID != e.PayerID {
			deliveries = append(deliveries, delivery{*e.GuardianID, RecipientTypeGuardian, NotifTypePaymentFailed})
		}
		return deliveries
	case *events.RefundProcessedEvent:
		return []delivery{{e.RequesterID, RecipientTypePayer, NotifTypeRefundProcessed}}
	case *events.LimitReachedEvent:
		return []delivery{{e.GuardianID, RecipientTypeGuardian, NotifTypeLimitAlert}}
	case *events.SubscriptionRenewedEvent:
		return []delivery{{e.OwnerID, RecipientTypePayer, NotifTypeSubscriptionRenewed}}
	case *events.SubscriptionCancelledEvent:
		return []delivery{{e.OwnerID, RecipientTypePayer, NotifTypeSubscriptionCancelled}}
	case *events.SubscriptionPastDueEvent:
		return []delivery{{e.OwnerID, RecipientTypePayer, NotifTypeSubscriptionPastDue}}
	default:
		return nil
	}
}

func (s *Service) List(recipientID int64, unreadOnly bool) ([]*Notification, error) {
	models, err := s.repo.ListByRecipient(recipientID, unreadOnly)
	if err != nil {
		return nil, errors.NewInternalError("failed to list notifications", err)
	}
	return FromDataModelSlice(models), nil
}

func (s *Service) UnreadCount(recipientID int64) (int64, error) {
	count, err := s.repo.CountUnread(recipientID)
	if err != nil {
		return 0, errors.NewInternalError("failed to count unread notifications", err)
	}
	return count, nil
}

// MarkRead is scoped to the recipient so one user cannot mark
// another's notifications.
func (s *Service) MarkRead(recipientID, notificationID int64) (*Notification, error) {
	model, err := s.repo.GetByID(notificationID)
	if err != nil {
		return nil, err
	}
	if model.RecipientID != recipientID {
		return nil, ErrNotRecipient
	}

	if !model.IsRead {
		updated, err := s.repo.MarkRead(notificationID, recipientID, s.now())
		if err != nil {
			return nil, errors.NewInternalError("failed to mark notification read", err)
		}
		if updated {
			model, err = s.repo.GetByID(notificationID)
			if err != nil {
				return nil, err
			}
		}
	}

	return FromDataModel(model), nil
}

func (s *Service) MarkAllRead(recipientID int64) (int64, error) {
	count, err := s.repo.MarkAllRead(recipientID, s.now())
	if err != nil {
		return 0, errors.NewInternalError("failed to mark notifications read", err)
	}
	return count, nil
}
