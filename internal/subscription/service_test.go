package subscription_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/tutor-billing/internal"
	subDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
	"github.com/frahmantamala/tutor-billing/internal/guardian"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
	"github.com/frahmantamala/tutor-billing/internal/subscription"
)

func TestSubscriptionService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Subscription Service Suite")
}

type mockSubscriptionRepository struct {
	plans  map[int64]*subDatamodel.Plan
	subs   map[int64]*subDatamodel.Subscription
	nextID int64
}

func newMockSubscriptionRepository() *mockSubscriptionRepository {
	return &mockSubscriptionRepository{
		plans:  make(map[int64]*subDatamodel.Plan),
		subs:   make(map[int64]*subDatamodel.Subscription),
		nextID: 1,
	}
}

func (m *mockSubscriptionRepository) CreatePlan(plan *subDatamodel.Plan) error {
	plan.ID = m.nextID
	m.nextID++
	m.plans[plan.ID] = plan
	return nil
}

func (m *mockSubscriptionRepository) GetPlanByID(id int64) (*subDatamodel.Plan, error) {
	plan, ok := m.plans[id]
	if !ok {
		return nil, subscription.ErrPlanNotFound
	}
	copied := *plan
	return &copied, nil
}

func (m *mockSubscriptionRepository) GetPlanByName(name string) (*subDatamodel.Plan, error) {
	for _, plan := range m.plans {
		if plan.Name == name {
			copied := *plan
			return &copied, nil
		}
	}
	return nil, subscription.ErrPlanNotFound
}

func (m *mockSubscriptionRepository) GetActivePlans() ([]*subDatamodel.Plan, error) {
	var result []*subDatamodel.Plan
	for _, plan := range m.plans {
		if plan.IsActive {
			copied := *plan
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockSubscriptionRepository) DeactivatePlan(id int64) error {
	if plan, ok := m.plans[id]; ok {
		plan.IsActive = false
	}
	return nil
}

func (m *mockSubscriptionRepository) CreateSubscription(sub *subDatamodel.Subscription) error {
	sub.ID = m.nextID
	m.nextID++
	m.subs[sub.ID] = sub
	return nil
}

func (m *mockSubscriptionRepository) GetSubscriptionByID(id int64) (*subDatamodel.Subscription, error) {
	sub, ok := m.subs[id]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (m *mockSubscriptionRepository) GetSubscriptionsByOwnerID(ownerID int64) ([]*subDatamodel.Subscription, error) {
	var result []*subDatamodel.Subscription
	for _, sub := range m.subs {
		if sub.OwnerID == ownerID {
			copied := *sub
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockSubscriptionRepository) GetLiveSubscription(ownerID, planID int64) (*subDatamodel.Subscription, error) {
	for _, sub := range m.subs {
		if sub.OwnerID == ownerID && sub.PlanID == planID {
			switch sub.Status {
			case subscription.StatusTrial, subscription.StatusActive, subscription.StatusPastDue:
				copied := *sub
				return &copied, nil
			}
		}
	}
	return nil, subscription.ErrSubscriptionNotFound
}

func (m *mockSubscriptionRepository) GetByLastTxnExternalID(externalID string) (*subDatamodel.Subscription, error) {
	for _, sub := range m.subs {
		if sub.LastTxnExternalID != nil && *sub.LastTxnExternalID == externalID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, subscription.ErrSubscriptionNotFound
}

func (m *mockSubscriptionRepository) UpdateSubscription(sub *subDatamodel.Subscription) error {
	stored := *sub
	m.subs[sub.ID] = &stored
	return nil
}

func (m *mockSubscriptionRepository) GetDueForRenewal(now time.Time) ([]*subDatamodel.Subscription, error) {
	var result []*subDatamodel.Subscription
	for _, sub := range m.subs {
		if !sub.AutoRenew {
			continue
		}
		if sub.Status != subscription.StatusTrial && sub.Status != subscription.StatusActive {
			continue
		}
		if !sub.RenewalDate.After(now) {
			copied := *sub
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockSubscriptionRepository) GetCancelledPastEnd(now time.Time) ([]*subDatamodel.Subscription, error) {
	var result []*subDatamodel.Subscription
	for _, sub := range m.subs {
		if sub.Status == subscription.StatusCancelled && !sub.EndDate.After(now) {
			copied := *sub
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockSubscriptionRepository) GetPastDueBeyondGrace(now time.Time) ([]*subDatamodel.Subscription, error) {
	var result []*subDatamodel.Subscription
	for _, sub := range m.subs {
		if sub.Status == subscription.StatusPastDue && sub.GraceUntil != nil && !sub.GraceUntil.After(now) {
			copied := *sub
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockSubscriptionRepository) GetPastDueWithinGrace(now time.Time) ([]*subDatamodel.Subscription, error) {
	var result []*subDatamodel.Subscription
	for _, sub := range m.subs {
		if sub.Status == subscription.StatusPastDue && sub.GraceUntil != nil && sub.GraceUntil.After(now) {
			copied := *sub
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockSubscriptionRepository) ConsumeCredit(id int64) (bool, error) {
	sub, ok := m.subs[id]
	if !ok || sub.SessionCreditsRemaining == nil || *sub.SessionCreditsRemaining <= 0 {
		return false, nil
	}
	*sub.SessionCreditsRemaining--
	return true, nil
}

type mockLedgerAPI struct {
	recorded    []*ledger.RecordTransactionDTO
	recordError error
	nextTxnID   int64
}

func (m *mockLedgerAPI) RecordTransaction(ctx context.Context, payerID int64, dto *ledger.RecordTransactionDTO) (*ledger.Transaction, error) {
	if m.recordError != nil {
		return nil, m.recordError
	}
	m.recorded = append(m.recorded, dto)
	m.nextTxnID++
	status := ledger.StatusPending
	if dto.AmountCents == 0 {
		status = ledger.StatusCompleted
	}
	return &ledger.Transaction{
		ID:          m.nextTxnID,
		ExternalID:  fmt.Sprintf("txn-ext-%d", m.nextTxnID),
		PayerID:     payerID,
		AmountCents: dto.AmountCents,
		Currency:    dto.Currency,
		TxnType:     dto.TxnType,
		Status:      status,
	}, nil
}

var _ = Describe("SubscriptionService", func() {
	var (
		service    *subscription.Service
		mockRepo   *mockSubscriptionRepository
		mockLedger *mockLedgerAPI
		ctx        context.Context
	)

	const ownerID = int64(7)

	intPtr := func(v int) *int { return &v }

	createPlan := func(priceCents int64, trialDays int, credits *int) *subscription.Plan {
		plan, err := service.CreatePlan(&subscription.CreatePlanDTO{
			Name:           fmt.Sprintf("plan-%d-%d", priceCents, trialDays),
			PriceCents:     priceCents,
			Currency:       "USD",
			BillingPeriod:  subscription.BillingPeriodMonthly,
			TrialDays:      trialDays,
			SessionCredits: credits,
		})
		Expect(err).ToNot(HaveOccurred())
		return plan
	}

	subscribe := func(planID int64) *subscription.Subscription {
		sub, err := service.Subscribe(ctx, ownerID, &subscription.SubscribeDTO{
			PlanID:          planID,
			PaymentMethodID: 3,
		})
		Expect(err).ToNot(HaveOccurred())
		return sub
	}

	BeforeEach(func() {
		mockRepo = newMockSubscriptionRepository()
		mockLedger = &mockLedgerAPI{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = subscription.NewService(mockRepo, mockLedger, events.NewEventBus(logger), 3*24*time.Hour, logger)
		ctx = context.Background()
	})

	Describe("Subscribe", func() {
		Context("to a paid plan without trial", func() {
			It("should charge the full price and start active", func() {
				plan := createPlan(2900, 0, intPtr(8))

				sub := subscribe(plan.ID)

				Expect(sub.Status).To(Equal(subscription.StatusActive))
				Expect(mockLedger.recorded).To(HaveLen(1))
				Expect(mockLedger.recorded[0].AmountCents).To(Equal(int64(2900)))
				Expect(mockLedger.recorded[0].TxnType).To(Equal(ledger.TxnTypeSubscription))
				Expect(*sub.SessionCreditsRemaining).To(Equal(8))
				Expect(sub.RenewalDate).To(Equal(sub.EndDate))
			})
		})

		Context("to a plan with trial days", func() {
			It("should start in trial on a zero-amount entry", func() {
				plan := createPlan(2900, 14, nil)

				sub := subscribe(plan.ID)

				Expect(sub.Status).To(Equal(subscription.StatusTrial))
				Expect(mockLedger.recorded).To(HaveLen(1))
				Expect(mockLedger.recorded[0].AmountCents).To(BeZero())
				expectedEnd := sub.StartDate.AddDate(0, 0, 14)
				Expect(sub.EndDate).To(BeTemporally("~", expectedEnd, time.Second))
			})
		})

		It("should reject a second live subscription to the same plan", func() {
			plan := createPlan(2900, 0, nil)
			subscribe(plan.ID)

			_, err := service.Subscribe(ctx, ownerID, &subscription.SubscribeDTO{
				PlanID:          plan.ID,
				PaymentMethodID: 3,
			})

			Expect(err).To(Equal(subscription.ErrAlreadySubscribed))
		})

		It("should reject a deactivated plan", func() {
			plan := createPlan(2900, 0, nil)
			Expect(service.DeactivatePlan(plan.ID)).To(Succeed())

			_, err := service.Subscribe(ctx, ownerID, &subscription.SubscribeDTO{
				PlanID:          plan.ID,
				PaymentMethodID: 3,
			})

			Expect(err).To(Equal(subscription.ErrPlanInactive))
		})

		It("should create nothing when the charge is denied", func() {
			plan := createPlan(2900, 0, nil)
			mockLedger.recordError = guardian.NewMonthlyLimitError(1000)

			_, err := service.Subscribe(ctx, ownerID, &subscription.SubscribeDTO{
				PlanID:          plan.ID,
				PaymentMethodID: 3,
			})

			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(errors.ErrCodeMonthlyLimit))
			Expect(mockRepo.subs).To(BeEmpty())
		})
	})

	Describe("Renew", func() {
		It("should reject a renewal before the renewal date", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)

			_, err := service.Renew(ctx, sub.ID)

			Expect(err).To(Equal(subscription.ErrRenewalNotDue))
		})

		It("should charge the plan price when a trial ends and keep the billing anchor", func() {
			plan := createPlan(2900, 14, intPtr(8))
			sub := subscribe(plan.ID)

			anchor := time.Now().Add(-time.Hour)
			stored := mockRepo.subs[sub.ID]
			stored.RenewalDate = anchor
			stored.EndDate = anchor
			stored.SessionCreditsRemaining = intPtr(1)

			renewed, err := service.Renew(ctx, sub.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(renewed.Status).To(Equal(subscription.StatusActive))
			Expect(mockLedger.recorded).To(HaveLen(2))
			Expect(mockLedger.recorded[1].AmountCents).To(Equal(int64(2900)))
			Expect(renewed.RenewalDate).To(BeTemporally("~", anchor.AddDate(0, 1, 0), time.Second))
			Expect(*renewed.SessionCreditsRemaining).To(Equal(8))
		})

		It("should move the subscription to past_due when the charge fails", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			mockRepo.subs[sub.ID].RenewalDate = time.Now().Add(-time.Hour)
			mockLedger.recordError = errors.NewProcessorError("processor unavailable", errors.ErrCodeProcessorTimeout, true)

			_, err := service.Renew(ctx, sub.ID)

			Expect(err).To(HaveOccurred())
			stored := mockRepo.subs[sub.ID]
			Expect(stored.Status).To(Equal(subscription.StatusPastDue))
			Expect(stored.GraceUntil).ToNot(BeNil())
			Expect(stored.GraceUntil.After(time.Now())).To(BeTrue())
		})

		It("should reject renewal when auto-renew is off", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			stored := mockRepo.subs[sub.ID]
			stored.RenewalDate = time.Now().Add(-time.Hour)
			stored.AutoRenew = false

			_, err := service.Renew(ctx, sub.ID)

			Expect(err).To(Equal(subscription.ErrAutoRenewDisabled))
			Expect(mockLedger.recorded).To(HaveLen(1))
		})

		It("should reject renewing a cancelled subscription", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			_, err := service.Cancel(ctx, ownerID, sub.ID, &subscription.CancelDTO{})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Renew(ctx, sub.ID)

			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(errors.ErrCodeIllegalTransition))
		})
	})

	Describe("RenewDueSubscriptions", func() {
		It("should renew only subscriptions past their renewal date", func() {
			plan := createPlan(2900, 0, nil)
			due := subscribe(plan.ID)
			mockRepo.subs[due.ID].RenewalDate = time.Now().Add(-time.Hour)

			plan2 := createPlan(4900, 0, nil)
			subscribe(plan2.ID)

			renewed, err := service.RenewDueSubscriptions(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(renewed).To(Equal(1))
		})
	})

	Describe("Cancel and Reactivate", func() {
		It("should keep access until the end date after cancelling", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			endBefore := mockRepo.subs[sub.ID].EndDate

			cancelled, err := service.Cancel(ctx, ownerID, sub.ID, &subscription.CancelDTO{Reason: "too expensive"})

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled.Status).To(Equal(subscription.StatusCancelled))
			Expect(cancelled.AutoRenew).To(BeFalse())
			Expect(cancelled.EndDate).To(Equal(endBefore))
			Expect(cancelled.HasAccess(time.Now())).To(BeTrue())
		})

		It("should reactivate while the paid period still runs", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			_, err := service.Cancel(ctx, ownerID, sub.ID, &subscription.CancelDTO{})
			Expect(err).ToNot(HaveOccurred())

			reactivated, err := service.Reactivate(ctx, ownerID, sub.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(reactivated.Status).To(Equal(subscription.StatusActive))
			Expect(reactivated.AutoRenew).To(BeTrue())
			Expect(reactivated.CancelReason).To(BeNil())
		})

		It("should refuse reactivation after the end date", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			_, err := service.Cancel(ctx, ownerID, sub.ID, &subscription.CancelDTO{})
			Expect(err).ToNot(HaveOccurred())
			mockRepo.subs[sub.ID].EndDate = time.Now().Add(-time.Hour)

			_, err = service.Reactivate(ctx, ownerID, sub.ID)

			Expect(err).To(Equal(subscription.ErrSubscriptionExpired))
		})

		It("should hide other owners' subscriptions", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)

			_, err := service.Cancel(ctx, 999, sub.ID, &subscription.CancelDTO{})

			Expect(err).To(Equal(subscription.ErrNotSubscriptionOwner))
		})
	})

	Describe("ConsumeSessionCredit", func() {
		It("should decrement credits and fail at zero", func() {
			plan := createPlan(2900, 0, intPtr(2))
			sub := subscribe(plan.ID)

			result, err := service.ConsumeSessionCredit(ownerID, sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(*result.SessionCreditsRemaining).To(Equal(1))

			result, err = service.ConsumeSessionCredit(ownerID, sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(*result.SessionCreditsRemaining).To(BeZero())

			_, err = service.ConsumeSessionCredit(ownerID, sub.ID)
			Expect(err).To(Equal(subscription.ErrNoSessionCredits))
		})

		It("should be a no-op on unlimited plans", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)

			result, err := service.ConsumeSessionCredit(ownerID, sub.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.SessionCreditsRemaining).To(BeNil())
		})
	})

	Describe("settlement event handling", func() {
		It("should move an active subscription to past_due on a failed renewal payment", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			externalID := *mockRepo.subs[sub.ID].LastTxnExternalID

			bus := events.NewEventBus(slog.New(slog.NewTextHandler(os.Stdout, nil)))
			service.RegisterEventHandlers(bus)
			err := bus.PublishSync(ctx, events.NewPaymentFailedEvent(1, externalID, ownerID, nil, 2900, "card declined"))
			Expect(err).ToNot(HaveOccurred())

			stored := mockRepo.subs[sub.ID]
			Expect(stored.Status).To(Equal(subscription.StatusPastDue))
			Expect(stored.GraceUntil).ToNot(BeNil())
		})

		It("should restore a past_due subscription when its charge completes", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			externalID := *mockRepo.subs[sub.ID].LastTxnExternalID

			bus := events.NewEventBus(slog.New(slog.NewTextHandler(os.Stdout, nil)))
			service.RegisterEventHandlers(bus)
			Expect(bus.PublishSync(ctx, events.NewPaymentFailedEvent(1, externalID, ownerID, nil, 2900, "card declined"))).To(Succeed())

			Expect(bus.PublishSync(ctx, events.NewPaymentCompletedEvent(
				1, externalID, ownerID, nil, nil, 2900, "USD", ledger.TxnTypeSubscription,
			))).To(Succeed())

			stored := mockRepo.subs[sub.ID]
			Expect(stored.Status).To(Equal(subscription.StatusActive))
			Expect(stored.GraceUntil).To(BeNil())
		})
	})

	Describe("ExpireDueSubscriptions", func() {
		It("should expire cancelled subscriptions past their end date", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			_, err := service.Cancel(ctx, ownerID, sub.ID, &subscription.CancelDTO{})
			Expect(err).ToNot(HaveOccurred())
			mockRepo.subs[sub.ID].EndDate = time.Now().Add(-time.Hour)

			expired, err := service.ExpireDueSubscriptions(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(expired).To(Equal(1))
			Expect(mockRepo.subs[sub.ID].Status).To(Equal(subscription.StatusExpired))
		})

		It("should expire past_due subscriptions whose grace ran out", func() {
			plan := createPlan(2900, 0, nil)
			sub := subscribe(plan.ID)
			stored := mockRepo.subs[sub.ID]
			stored.Status = subscription.StatusPastDue
			grace := time.Now().Add(-time.Minute)
			stored.GraceUntil = &grace

			expired, err := service.ExpireDueSubscriptions(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(expired).To(Equal(1))
			Expect(mockRepo.subs[sub.ID].Status).To(Equal(subscription.StatusExpired))
		})

		It("should leave live subscriptions alone", func() {
			plan := createPlan(2900, 0, nil)
			subscribe(plan.ID)

			expired, err := service.ExpireDueSubscriptions(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(expired).To(BeZero())
		})
	})
})
