package subscription

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	subDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
)

// RepositoryAPI defines the data access methods for plans and
// subscriptions. ConsumeCredit is a guarded decrement so concurrent
// session bookings cannot spend the same credit twice.
type RepositoryAPI interface {
	CreatePlan(plan *subDatamodel.Plan) error
	GetPlanByID(id int64) (*subDatamodel.Plan, error)
	GetPlanByName(name string) (*subDatamodel.Plan, error)
	GetActivePlans() ([]*subDatamodel.Plan, error)
	DeactivatePlan(id int64) error

	CreateSubscription(sub *subDatamodel.Subscription) error
	GetSubscriptionByID(id int64) (*subDatamodel.Subscription, error)
	GetSubscriptionsByOwnerID(ownerID int64) ([]*subDatamodel.Subscription, error)
	GetLiveSubscription(ownerID, planID int64) (*subDatamodel.Subscription, error)
	GetByLastTxnExternalID(externalID string) (*subDatamodel.Subscription, error)
	UpdateSubscription(sub *subDatamodel.Subscription) error
	GetDueForRenewal(now time.Time) ([]*subDatamodel.Subscription, error)
	GetCancelledPastEnd(now time.Time) ([]*subDatamodel.Subscription, error)
	GetPastDueBeyondGrace(now time.Time) ([]*subDatamodel.Subscription, error)
	GetPastDueWithinGrace(now time.Time) ([]*subDatamodel.Subscription, error)
	ConsumeCredit(id int64) (bool, error)
}

// LedgerAPI is the slice of the transaction ledger subscriptions
// charge through.
type LedgerAPI interface {
	RecordTransaction(ctx context.Context, payerID int64, dto *ledger.RecordTransactionDTO) (*ledger.Transaction, error)
}

type Service struct {
	repo        RepositoryAPI
	ledger      LedgerAPI
	eventBus    *events.EventBus
	logger      *slog.Logger
	gracePeriod time.Duration
	now         func() time.Time
}

func NewService(repo RepositoryAPI, ledgerSvc LedgerAPI, eventBus *events.EventBus, gracePeriod time.Duration, logger *slog.Logger) *Service {
	if gracePeriod <= 0 {
		gracePeriod = 3 * 24 * time.Hour
	}
	return &Service{
		repo:        repo,
		ledger:      ledgerSvc,
		eventBus:    eventBus,
		logger:      logger,
		gracePeriod: gracePeriod,
		now:         time.Now,
	}
}

// RegisterEventHandlers wires the service to settlement outcomes. A
// failed renewal charge moves the subscription into its grace window;
// a completed one restores it.
func (s *Service) RegisterEventHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentCompleted, s.handlePaymentCompleted)
	bus.Subscribe(events.EventTypePaymentFailed, s.handlePaymentFailed)
}

// ----------------- PLAN CATALOG -----------------

func (s *Service) CreatePlan(dto *CreatePlanDTO) (*Plan, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetPlanByName(dto.Name); err == nil && existing != nil {
		return nil, ErrPlanNameTaken
	}

	model := &subDatamodel.Plan{
		Name:           dto.Name,
		Description:    dto.Description,
		PriceCents:     dto.PriceCents,
		Currency:       dto.Currency,
		BillingPeriod:  dto.BillingPeriod,
		TrialDays:      dto.TrialDays,
		SessionCredits: dto.SessionCredits,
		IsActive:       true,
		CreatedAt:      s.now(),
		UpdatedAt:      s.now(),
	}

	if err := s.repo.CreatePlan(model); err != nil {
		s.logger.Error("failed to create plan", "error", err, "name", dto.Name)
		return nil, errors.NewInternalError("failed to create plan", err)
	}

	s.logger.Info("plan created", "plan_id", model.ID, "name", model.Name, "price_cents", model.PriceCents)
	return PlanFromDataModel(model), nil
}

func (s *Service) ListPlans() ([]*Plan, error) {
	models, err := s.repo.GetActivePlans()
	if err != nil {
		return nil, errors.NewInternalError("failed to list plans", err)
	}
	plans := make([]*Plan, len(models))
	for i, m := range models {
		plans[i] = PlanFromDataModel(m)
	}
	return plans, nil
}

func (s *Service) GetPlan(id int64) (*Plan, error) {
	model, err := s.repo.GetPlanByID(id)
	if err != nil {
		return nil, err
	}
	return PlanFromDataModel(model), nil
}

// DeactivatePlan retires a plan from the catalog. Existing
// subscriptions keep renewing on it.
func (s *Service) DeactivatePlan(id int64) error {
	if _, err := s.repo.GetPlanByID(id); err != nil {
		return err
	}
	if err := s.repo.DeactivatePlan(id); err != nil {
		return errors.NewInternalError("failed to deactivate plan", err)
	}
	s.logger.Info("plan deactivated", "plan_id", id)
	return nil
}

// ----------------- LIFECYCLE -----------------

// Subscribe starts a subscription. Plans with trial days start in
// trial on a zero-amount ledger entry; paid plans charge the full
// price up front. The charge runs before anything is written, so a
// guardian denial leaves no subscription behind.
func (s *Service) Subscribe(ctx context.Context, ownerID int64, dto *SubscribeDTO) (*Subscription, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	plan, err := s.repo.GetPlanByID(dto.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}

	if live, err := s.repo.GetLiveSubscription(ownerID, dto.PlanID); err == nil && live != nil {
		return nil, ErrAlreadySubscribed
	}

	now := s.now()
	trial := plan.TrialDays > 0

	amountCents := plan.PriceCents
	status := StatusActive
	endDate := PeriodEnd(now, plan.BillingPeriod)
	if trial {
		amountCents = 0
		status = StatusTrial
		endDate = now.AddDate(0, 0, plan.TrialDays)
	}

	txn, err := s.ledger.RecordTransaction(ctx, ownerID, &ledger.RecordTransactionDTO{
		AmountCents:     amountCents,
		Currency:        plan.Currency,
		TxnType:         ledger.TxnTypeSubscription,
		PaymentMethodID: dto.PaymentMethodID,
	})
	if err != nil {
		s.logger.Warn("subscription charge failed", "error", err, "owner_id", ownerID, "plan_id", dto.PlanID)
		return nil, err
	}

	var credits *int
	if plan.SessionCredits != nil {
		c := *plan.SessionCredits
		credits = &c
	}

	model := &subDatamodel.Subscription{
		OwnerID:                 ownerID,
		PlanID:                  dto.PlanID,
		PaymentMethodID:         dto.PaymentMethodID,
		Status:                  status,
		StartDate:               now,
		EndDate:                 endDate,
		RenewalDate:             endDate,
		AutoRenew:               true,
		SessionCreditsRemaining: credits,
		LastTxnExternalID:       &txn.ExternalID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.repo.CreateSubscription(model); err != nil {
		s.logger.Error("failed to create subscription", "error", err, "owner_id", ownerID)
		return nil, errors.NewInternalError("failed to create subscription", err)
	}

	s.logger.Info("subscription created",
		"subscription_id", model.ID,
		"owner_id", ownerID,
		"plan_id", dto.PlanID,
		"status", status,
		"trial", trial)

	return FromDataModel(model), nil
}

// Renew charges the next period and advances the dates from the
// current renewal anchor, so billing days do not drift. The
// subscription turns active optimistically; a later failed settlement
// pulls it into past_due through the event handler.
func (s *Service) Renew(ctx context.Context, subscriptionID int64) (*Subscription, error) {
	model, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, err
	}

	switch model.Status {
	case StatusTrial, StatusActive, StatusPastDue:
	default:
		return nil, NewIllegalTransitionError(model.Status, StatusActive)
	}
	if !model.AutoRenew {
		return nil, ErrAutoRenewDisabled
	}

	now := s.now()
	if now.Before(model.RenewalDate) {
		return nil, ErrRenewalNotDue
	}

	plan, err := s.repo.GetPlanByID(model.PlanID)
	if err != nil {
		return nil, err
	}

	txn, err := s.ledger.RecordTransaction(ctx, model.OwnerID, &ledger.RecordTransactionDTO{
		AmountCents:     plan.PriceCents,
		Currency:        plan.Currency,
		TxnType:         ledger.TxnTypeSubscription,
		PaymentMethodID: model.PaymentMethodID,
	})
	if err != nil {
		s.logger.Warn("renewal charge failed",
			"error", err,
			"subscription_id", subscriptionID,
			"owner_id", model.OwnerID)
		if model.Status != StatusPastDue {
			// A retry inside the grace window keeps its original
			// deadline.
			if moveErr := s.moveToPastDue(ctx, model, err.Error()); moveErr != nil {
				s.logger.Error("failed to mark subscription past due", "error", moveErr, "subscription_id", subscriptionID)
			}
		}
		return nil, err
	}

	newEnd := PeriodEnd(model.RenewalDate, plan.BillingPeriod)

	model.Status = StatusActive
	model.EndDate = newEnd
	model.RenewalDate = newEnd
	model.GraceUntil = nil
	model.LastTxnExternalID = &txn.ExternalID
	if plan.SessionCredits != nil {
		c := *plan.SessionCredits
		model.SessionCreditsRemaining = &c
	}
	model.UpdatedAt = now

	if err := s.repo.UpdateSubscription(model); err != nil {
		return nil, errors.NewInternalError("failed to renew subscription", err)
	}

	s.publish(ctx, events.NewSubscriptionRenewedEvent(model.ID, model.OwnerID, model.PlanID, newEnd, plan.PriceCents))

	s.logger.Info("subscription renewed",
		"subscription_id", model.ID,
		"owner_id", model.OwnerID,
		"new_renewal_date", newEnd)

	return FromDataModel(model), nil
}

// RenewDueSubscriptions is the scheduled sweep over auto-renewing
// subscriptions whose renewal date has passed.
func (s *Service) RenewDueSubscriptions(ctx context.Context) (int, error) {
	due, err := s.repo.GetDueForRenewal(s.now())
	if err != nil {
		return 0, errors.NewInternalError("failed to load due subscriptions", err)
	}

	renewed := 0
	for _, model := range due {
		if _, err := s.Renew(ctx, model.ID); err != nil {
			s.logger.Warn("scheduled renewal failed", "error", err, "subscription_id", model.ID)
			continue
		}
		renewed++
	}

	if len(due) > 0 {
		s.logger.Info("renewal sweep complete", "due", len(due), "renewed", renewed)
	}
	return renewed, nil
}

// Cancel stops auto-renewal. Paid-for access stays until the end date.
func (s *Service) Cancel(ctx context.Context, ownerID, subscriptionID int64, dto *CancelDTO) (*Subscription, error) {
	model, err := s.ownedSubscription(ownerID, subscriptionID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(model.Status, StatusCancelled) {
		return nil, NewIllegalTransitionError(model.Status, StatusCancelled)
	}

	now := s.now()
	model.Status = StatusCancelled
	model.AutoRenew = false
	model.CancelledAt = &now
	if dto != nil && dto.Reason != "" {
		model.CancelReason = &dto.Reason
	}
	model.GraceUntil = nil
	model.UpdatedAt = now

	if err := s.repo.UpdateSubscription(model); err != nil {
		return nil, errors.NewInternalError("failed to cancel subscription", err)
	}

	reason := ""
	if model.CancelReason != nil {
		reason = *model.CancelReason
	}
	s.publish(ctx, events.NewSubscriptionCancelledEvent(model.ID, model.OwnerID, model.PlanID, reason, model.EndDate))

	s.logger.Info("subscription cancelled",
		"subscription_id", model.ID,
		"owner_id", ownerID,
		"access_until", model.EndDate)

	return FromDataModel(model), nil
}

// Reactivate undoes a cancellation while the paid period still runs.
// Once the end date passes, the only way back is a new subscription.
func (s *Service) Reactivate(ctx context.Context, ownerID, subscriptionID int64) (*Subscription, error) {
	model, err := s.ownedSubscription(ownerID, subscriptionID)
	if err != nil {
		return nil, err
	}

	if model.Status != StatusCancelled {
		return nil, NewIllegalTransitionError(model.Status, StatusActive)
	}
	if !s.now().Before(model.EndDate) {
		return nil, ErrSubscriptionExpired
	}

	model.Status = StatusActive
	model.AutoRenew = true
	model.CancelReason = nil
	model.CancelledAt = nil
	model.UpdatedAt = s.now()

	if err := s.repo.UpdateSubscription(model); err != nil {
		return nil, errors.NewInternalError("failed to reactivate subscription", err)
	}

	s.logger.Info("subscription reactivated", "subscription_id", model.ID, "owner_id", ownerID)
	return FromDataModel(model), nil
}

// ConsumeSessionCredit burns one credit for a booked session. Nil
// credits mean the plan is unlimited and there is nothing to burn.
func (s *Service) ConsumeSessionCredit(ownerID, subscriptionID int64) (*Subscription, error) {
	model, err := s.ownedSubscription(ownerID, subscriptionID)
	if err != nil {
		return nil, err
	}

	switch model.Status {
	case StatusTrial, StatusActive:
	default:
		return nil, NewIllegalTransitionError(model.Status, model.Status)
	}

	if model.SessionCreditsRemaining == nil {
		return FromDataModel(model), nil
	}

	consumed, err := s.repo.ConsumeCredit(subscriptionID)
	if err != nil {
		return nil, errors.NewInternalError("failed to consume session credit", err)
	}
	if !consumed {
		return nil, ErrNoSessionCredits
	}

	model, err = s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("session credit consumed",
		"subscription_id", subscriptionID,
		"remaining", *model.SessionCreditsRemaining)

	return FromDataModel(model), nil
}

func (s *Service) GetSubscription(ownerID, subscriptionID int64, isAdmin bool) (*Subscription, error) {
	model, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && model.OwnerID != ownerID {
		return nil, ErrNotSubscriptionOwner
	}
	return FromDataModel(model), nil
}

func (s *Service) ListSubscriptions(ownerID int64) ([]*Subscription, error) {
	models, err := s.repo.GetSubscriptionsByOwnerID(ownerID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list subscriptions", err)
	}
	return FromDataModelSlice(models), nil
}

// ExpireDueSubscriptions closes out subscriptions whose access has
// genuinely ended: cancelled ones past their end date and past_due
// ones whose grace window ran out.
func (s *Service) ExpireDueSubscriptions(ctx context.Context) (int, error) {
	now := s.now()
	expired := 0

	cancelled, err := s.repo.GetCancelledPastEnd(now)
	if err != nil {
		return 0, errors.NewInternalError("failed to load cancelled subscriptions", err)
	}
	pastGrace, err := s.repo.GetPastDueBeyondGrace(now)
	if err != nil {
		return 0, errors.NewInternalError("failed to load past due subscriptions", err)
	}

	for _, model := range append(cancelled, pastGrace...) {
		if !CanTransition(model.Status, StatusExpired) {
			continue
		}
		model.Status = StatusExpired
		model.AutoRenew = false
		model.GraceUntil = nil
		model.UpdatedAt = now
		if err := s.repo.UpdateSubscription(model); err != nil {
			s.logger.Error("failed to expire subscription", "error", err, "subscription_id", model.ID)
			continue
		}
		expired++
		s.logger.Info("subscription expired", "subscription_id", model.ID, "owner_id", model.OwnerID)
	}

	return expired, nil
}

// RetryPastDueSubscriptions re-attempts the renewal charge for
// subscriptions still inside their grace window. Ones that keep
// failing stay past_due until the expiry sweep collects them.
func (s *Service) RetryPastDueSubscriptions(ctx context.Context) (int, error) {
	pastDue, err := s.repo.GetPastDueWithinGrace(s.now())
	if err != nil {
		return 0, errors.NewInternalError("failed to load past due subscriptions", err)
	}

	recovered := 0
	for _, model := range pastDue {
		if _, err := s.Renew(ctx, model.ID); err != nil {
			s.logger.Warn("past due retry failed", "error", err, "subscription_id", model.ID)
			continue
		}
		recovered++
	}

	if len(pastDue) > 0 {
		s.logger.Info("past due retry sweep complete", "past_due", len(pastDue), "recovered", recovered)
	}
	return recovered, nil
}

// ----------------- SETTLEMENT HANDLERS -----------------

func (s *Service) handlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok || completed.TransactionType != ledger.TxnTypeSubscription {
		return nil
	}

	model, err := s.repo.GetByLastTxnExternalID(completed.ExternalID)
	if err != nil {
		return nil
	}

	if model.Status != StatusPastDue {
		return nil
	}

	model.Status = StatusActive
	model.GraceUntil = nil
	model.UpdatedAt = s.now()
	if err := s.repo.UpdateSubscription(model); err != nil {
		return err
	}

	s.logger.Info("subscription recovered from past due",
		"subscription_id", model.ID,
		"external_id", completed.ExternalID)
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return nil
	}

	model, err := s.repo.GetByLastTxnExternalID(failed.ExternalID)
	if err != nil {
		return nil
	}

	switch model.Status {
	case StatusTrial, StatusActive:
	default:
		return nil
	}

	return s.moveToPastDue(ctx, model, failed.FailureReason)
}

func (s *Service) moveToPastDue(ctx context.Context, model *subDatamodel.Subscription, reason string) error {
	now := s.now()
	graceUntil := now.Add(s.gracePeriod)

	model.Status = StatusPastDue
	model.GraceUntil = &graceUntil
	model.UpdatedAt = now

	if err := s.repo.UpdateSubscription(model); err != nil {
		return err
	}

	s.publish(ctx, events.NewSubscriptionPastDueEvent(model.ID, model.OwnerID, model.PlanID, graceUntil, reason))

	s.logger.Warn("subscription past due",
		"subscription_id", model.ID,
		"owner_id", model.OwnerID,
		"grace_until", graceUntil,
		"reason", reason)
	return nil
}

func (s *Service) ownedSubscription(ownerID, subscriptionID int64) (*subDatamodel.Subscription, error) {
	model, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, err
	}
	if model.OwnerID != ownerID {
		return nil, ErrNotSubscriptionOwner
	}
	return model, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish subscription event", "error", err, "event_type", event.EventType())
	}
}
