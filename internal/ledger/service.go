package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/tutor-billing/internal"
	processortypes "github.com/frahmantamala/tutor-billing/internal/core/datamodel/processor"
	txnDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/transaction"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
	"github.com/frahmantamala/tutor-billing/internal/guardian"
	"github.com/frahmantamala/tutor-billing/internal/paymentmethod"
)

// RepositoryAPI defines the data access methods for the transaction
// ledger. Settle and AddRefund are guarded updates keyed on the
// current status, which makes retried settlements safe.
type RepositoryAPI interface {
	Create(txn *txnDatamodel.Transaction) error
	GetByID(id int64) (*txnDatamodel.Transaction, error)
	GetByExternalID(externalID string) (*txnDatamodel.Transaction, error)
	GetByPayerID(payerID int64, q HistoryQuery) ([]*txnDatamodel.Transaction, error)
	CountByPayerID(payerID int64, q HistoryQuery) (int64, error)
	Settle(id int64, status string, failureReason *string, processorResponse json.RawMessage, settledAt time.Time) (bool, error)
	AddRefund(id int64, amountCents int64) (bool, error)
}

// GuardianAPI is the slice of the guardian service the ledger needs.
type GuardianAPI interface {
	AuthorizeCharge(ctx context.Context, paymentMethodID int64, studentID *int64, amountCents int64) (*guardian.Authorization, error)
	CommitReservation(reservationID int64) error
	ReleaseReservation(reservationID int64) error
	GuardianForReservation(reservationID int64) (int64, error)
}

type MethodRegistryAPI interface {
	GetChargeableMethod(methodID int64) (*paymentmethod.PaymentMethod, error)
}

// CaptureAPI queues asynchronous captures; outcomes arrive later on
// the settlement webhook.
type CaptureAPI interface {
	Capture(req *processortypes.CaptureRequest) error
}

type Service struct {
	repo      RepositoryAPI
	guardians GuardianAPI
	methods   MethodRegistryAPI
	processor CaptureAPI
	eventBus  *events.EventBus
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	repo RepositoryAPI,
	guardians GuardianAPI,
	methods MethodRegistryAPI,
	processor CaptureAPI,
	eventBus *events.EventBus,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		guardians: guardians,
		methods:   methods,
		processor: processor,
		eventBus:  eventBus,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordTransaction opens a ledger entry and starts the charge. The
// guardian check runs before anything is written: a denied charge
// leaves no row behind. Zero-amount entries settle immediately.
func (s *Service) RecordTransaction(ctx context.Context, payerID int64, dto *RecordTransactionDTO) (*Transaction, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("transaction validation failed", "error", err, "payer_id", payerID)
		return nil, err
	}

	if _, err := s.methods.GetChargeableMethod(dto.PaymentMethodID); err != nil {
		return nil, err
	}

	auth := &guardian.Authorization{}
	if dto.AmountCents > 0 {
		authorized, err := s.guardians.AuthorizeCharge(ctx, dto.PaymentMethodID, dto.StudentID, dto.AmountCents)
		if err != nil {
			s.logger.Warn("charge not authorized",
				"error", err,
				"payer_id", payerID,
				"payment_method_id", dto.PaymentMethodID,
				"amount_cents", dto.AmountCents)
			return nil, err
		}
		auth = authorized
	}

	model := &txnDatamodel.Transaction{
		ExternalID:      uuid.New().String(),
		PayerID:         payerID,
		StudentID:       dto.StudentID,
		AmountCents:     dto.AmountCents,
		Currency:        dto.Currency,
		TxnType:         dto.TxnType,
		Status:          StatusPending,
		PaymentMethodID: dto.PaymentMethodID,
		ReservationID:   auth.ReservationID,
		CreatedAt:       s.now(),
		UpdatedAt:       s.now(),
	}

	if err := s.repo.Create(model); err != nil {
		s.logger.Error("failed to create transaction", "error", err, "payer_id", payerID)
		if auth.ReservationID != nil {
			if relErr := s.guardians.ReleaseReservation(*auth.ReservationID); relErr != nil {
				s.logger.Error("failed to release reservation after create error",
					"error", relErr, "reservation_id", *auth.ReservationID)
			}
		}
		return nil, errors.NewInternalError("failed to record transaction", err)
	}

	s.logger.Info("transaction recorded",
		"transaction_id", model.ID,
		"external_id", model.ExternalID,
		"payer_id", payerID,
		"amount_cents", dto.AmountCents,
		"txn_type", dto.TxnType)

	if dto.AmountCents == 0 {
		return s.settle(ctx, model, StatusCompleted, nil, nil)
	}

	captureReq := &processortypes.CaptureRequest{
		IdempotencyKey: model.ExternalID,
		AmountCents:    model.AmountCents,
		Currency:       model.Currency,
		MethodRef:      strconv.FormatInt(model.PaymentMethodID, 10),
	}
	if err := s.processor.Capture(captureReq); err != nil {
		s.logger.Error("failed to queue capture", "error", err, "external_id", model.ExternalID)
		reason := "capture could not be queued"
		if _, settleErr := s.settle(ctx, model, StatusFailed, &reason, nil); settleErr != nil {
			s.logger.Error("failed to fail transaction after queue error",
				"error", settleErr, "external_id", model.ExternalID)
		}
		return nil, errors.NewProcessorError("payment processor unavailable", errors.ErrCodeProcessorTimeout, true).WithCause(err)
	}

	return FromDataModel(model), nil
}

// SettleByExternalID applies a processor outcome. Replays of the same
// outcome are no-ops; a conflicting outcome for an already settled
// transaction is rejected.
func (s *Service) SettleByExternalID(ctx context.Context, externalID, outcome, reason string, processorResponse json.RawMessage) (*Transaction, error) {
	model, err := s.repo.GetByExternalID(externalID)
	if err != nil {
		return nil, err
	}

	target := StatusFailed
	if outcome == string(processortypes.OutcomeAccepted) {
		target = StatusCompleted
	}

	if model.Status != StatusPending {
		if model.Status == target || (target == StatusCompleted && model.Status == StatusRefunded) {
			s.logger.Info("settlement replay ignored",
				"external_id", externalID, "status", model.Status)
			return FromDataModel(model), nil
		}
		s.logger.Warn("conflicting settlement rejected",
			"external_id", externalID,
			"status", model.Status,
			"requested", target)
		return nil, ErrAlreadySettled
	}

	var failureReason *string
	if target == StatusFailed {
		if reason == "" {
			reason = "payment declined"
		}
		failureReason = &reason
	}

	return s.settle(ctx, model, target, failureReason, processorResponse)
}

// ApplyRefund accumulates a refund against a completed transaction.
// The status flips to refunded only when the full amount is returned.
func (s *Service) ApplyRefund(ctx context.Context, transactionID, amountCents int64) (*Transaction, error) {
	model, err := s.repo.GetByID(transactionID)
	if err != nil {
		return nil, err
	}

	if model.Status != StatusCompleted {
		return nil, ErrNotRefundable
	}
	if amountCents <= 0 {
		return nil, errors.NewValidationFieldError("amount_cents", "refund amount must be positive", errors.ErrCodeInvalidAmount)
	}
	if model.RefundAmountCents+amountCents > model.AmountCents {
		return nil, ErrRefundExceedsTotal
	}

	updated, err := s.repo.AddRefund(transactionID, amountCents)
	if err != nil {
		return nil, errors.NewInternalError("failed to apply refund", err)
	}
	if !updated {
		// Lost a race with another refund; re-read and report.
		return nil, ErrRefundExceedsTotal
	}

	model, err = s.repo.GetByID(transactionID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund applied to ledger",
		"transaction_id", transactionID,
		"refund_amount_cents", amountCents,
		"total_refunded_cents", model.RefundAmountCents,
		"status", model.Status)

	return FromDataModel(model), nil
}

func (s *Service) GetTransaction(payerID, transactionID int64, isAdmin bool) (*Transaction, error) {
	model, err := s.repo.GetByID(transactionID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && model.PayerID != payerID {
		return nil, ErrNotPayer
	}
	return FromDataModel(model), nil
}

// Get loads a transaction without an ownership check, for services
// that enforce their own access rules.
func (s *Service) Get(transactionID int64) (*Transaction, error) {
	model, err := s.repo.GetByID(transactionID)
	if err != nil {
		return nil, err
	}
	return FromDataModel(model), nil
}

func (s *Service) GetByExternalID(externalID string) (*Transaction, error) {
	model, err := s.repo.GetByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	return FromDataModel(model), nil
}

func (s *Service) History(payerID int64, q HistoryQuery) (*HistoryResponse, error) {
	q.Normalize()

	models, err := s.repo.GetByPayerID(payerID, q)
	if err != nil {
		return nil, errors.NewInternalError("failed to load transaction history", err)
	}

	total, err := s.repo.CountByPayerID(payerID, q)
	if err != nil {
		return nil, errors.NewInternalError("failed to count transactions", err)
	}

	return &HistoryResponse{
		Transactions: FromDataModelSlice(models),
		Total:        int(total),
		Limit:        q.Limit,
		Offset:       q.Offset,
	}, nil
}

// settle performs the pending -> settled transition and the guardian
// and event side effects that go with it.
func (s *Service) settle(ctx context.Context, model *txnDatamodel.Transaction, target string, failureReason *string, processorResponse json.RawMessage) (*Transaction, error) {
	settledAt := s.now()
	updated, err := s.repo.Settle(model.ID, target, failureReason, processorResponse, settledAt)
	if err != nil {
		return nil, errors.NewInternalError("failed to settle transaction", err)
	}
	if !updated {
		// Another settlement won the race; treat a matching outcome as
		// a replay.
		current, err := s.repo.GetByID(model.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == target {
			return FromDataModel(current), nil
		}
		return nil, ErrAlreadySettled
	}

	model.Status = target
	model.FailureReason = failureReason
	model.ProcessorResponse = processorResponse
	model.SettledAt = &settledAt

	if model.ReservationID != nil {
		if target == StatusCompleted {
			if err := s.guardians.CommitReservation(*model.ReservationID); err != nil {
				s.logger.Error("failed to commit reservation",
					"error", err, "reservation_id", *model.ReservationID)
			}
		} else {
			if err := s.guardians.ReleaseReservation(*model.ReservationID); err != nil {
				s.logger.Error("failed to release reservation",
					"error", err, "reservation_id", *model.ReservationID)
			}
		}
	}

	s.publishSettlement(ctx, model, failureReason)

	s.logger.Info("transaction settled",
		"transaction_id", model.ID,
		"external_id", model.ExternalID,
		"status", target)

	return FromDataModel(model), nil
}

func (s *Service) publishSettlement(ctx context.Context, model *txnDatamodel.Transaction, failureReason *string) {
	if s.eventBus == nil {
		return
	}

	var guardianID *int64
	if model.ReservationID != nil {
		if id, err := s.guardians.GuardianForReservation(*model.ReservationID); err == nil {
			guardianID = &id
		}
	}

	var event events.Event
	if model.Status == StatusCompleted {
		event = events.NewPaymentCompletedEvent(
			model.ID, model.ExternalID, model.PayerID,
			model.StudentID, guardianID,
			model.AmountCents, model.Currency, model.TxnType,
		)
	} else {
		reason := "payment failed"
		if failureReason != nil {
			reason = *failureReason
		}
		event = events.NewPaymentFailedEvent(
			model.ID, model.ExternalID, model.PayerID,
			guardianID, model.AmountCents, reason,
		)
	}

	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish settlement event",
			"error", err, "external_id", model.ExternalID)
	}
}
