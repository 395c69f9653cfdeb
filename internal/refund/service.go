package refund

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	processortypes "github.com/frahmantamala/tutor-billing/internal/core/datamodel/processor"
	refundDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/refund"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
)

// RepositoryAPI defines the data access methods for refund requests.
// Status moves are guarded on the current status so concurrent admin
// decisions cannot both land.
type RepositoryAPI interface {
	Create(request *refundDatamodel.RefundRequest) error
	GetByID(id int64) (*refundDatamodel.RefundRequest, error)
	GetOpenByTransactionID(transactionID int64) ([]*refundDatamodel.RefundRequest, error)
	UpdateStatus(id int64, fromStatus, toStatus string) (bool, error)
	MarkDecided(id int64, toStatus string, decidedBy int64, notes *string, decidedAt time.Time) (bool, error)
	MarkProcessed(id int64, processedAt time.Time) (bool, error)
	ListByRequester(requesterID int64) ([]*refundDatamodel.RefundRequest, error)
	ListByStatus(status string) ([]*refundDatamodel.RefundRequest, error)
}

// LedgerAPI is the slice of the transaction ledger the workflow needs.
type LedgerAPI interface {
	Get(transactionID int64) (*ledger.Transaction, error)
	ApplyRefund(ctx context.Context, transactionID, amountCents int64) (*ledger.Transaction, error)
}

// RefundProcessorAPI sends the money back through the external
// processor. The call is synchronous.
type RefundProcessorAPI interface {
	Refund(ctx context.Context, req *processortypes.RefundRequest) (*processortypes.Result, error)
}

type Service struct {
	repo      RepositoryAPI
	ledger    LedgerAPI
	processor RefundProcessorAPI
	eventBus  *events.EventBus
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, ledgerSvc LedgerAPI, processor RefundProcessorAPI, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledgerSvc,
		processor: processor,
		eventBus:  eventBus,
		logger:    logger,
		now:       time.Now,
	}
}

// Request opens a refund request. Only the payer of a completed
// session_payment or subscription transaction can ask, one open
// request per transaction, and the amount must fit in what is still
// refundable.
func (s *Service) Request(ctx context.Context, requesterID int64, dto *RequestRefundDTO) (*RefundRequest, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("refund request validation failed", "error", err, "requester_id", requesterID)
		return nil, err
	}

	txn, err := s.ledger.Get(dto.TransactionID)
	if err != nil {
		return nil, err
	}

	if txn.PayerID != requesterID {
		return nil, errors.NewForbiddenError("only the payer can request a refund", errors.ErrCodeNotOwner)
	}

	if txn.TxnType != ledger.TxnTypeSessionPayment && txn.TxnType != ledger.TxnTypeSubscription {
		return nil, ErrTxnNotRefundable
	}
	if txn.Status != ledger.StatusCompleted {
		return nil, ErrTxnNotRefundable
	}

	open, err := s.repo.GetOpenByTransactionID(dto.TransactionID)
	if err != nil {
		return nil, errors.NewInternalError("failed to check existing refund requests", err)
	}
	if len(open) > 0 {
		return nil, ErrDuplicateRequest
	}

	if dto.AmountCents > txn.RemainingRefundableCents() {
		s.logger.Warn("refund request exceeds remaining amount",
			"transaction_id", dto.TransactionID,
			"requested_cents", dto.AmountCents,
			"remaining_cents", txn.RemainingRefundableCents())
		return nil, ErrRefundExceedsTotal
	}

	method := dto.RefundMethod
	if method == "" {
		method = RefundMethodOriginal
	}

	model := &refundDatamodel.RefundRequest{
		TransactionID: dto.TransactionID,
		RequesterID:   requesterID,
		AmountCents:   dto.AmountCents,
		Reason:        dto.Reason,
		Description:   dto.Description,
		Status:        StatusPending,
		RefundMethod:  method,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}

	if err := s.repo.Create(model); err != nil {
		s.logger.Error("failed to create refund request", "error", err, "transaction_id", dto.TransactionID)
		return nil, errors.NewInternalError("failed to create refund request", err)
	}

	s.logger.Info("refund requested",
		"refund_id", model.ID,
		"transaction_id", dto.TransactionID,
		"requester_id", requesterID,
		"amount_cents", dto.AmountCents,
		"reason", dto.Reason)

	return FromDataModel(model), nil
}

// Decide records the admin verdict on a pending request. Approval
// triggers processing immediately; if the processor call fails, the
// request stays approved and Process can be retried.
func (s *Service) Decide(ctx context.Context, adminID, refundID int64, dto *DecideRefundDTO) (*RefundRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	model, err := s.repo.GetByID(refundID)
	if err != nil {
		return nil, err
	}
	if model.Status != StatusPending {
		return nil, ErrNotPending
	}

	target := StatusRejected
	if dto.Approve {
		target = StatusApproved
	}

	decided, err := s.repo.MarkDecided(refundID, target, adminID, dto.AdminNotes, s.now())
	if err != nil {
		return nil, errors.NewInternalError("failed to record decision", err)
	}
	if !decided {
		return nil, ErrNotPending
	}

	s.logger.Info("refund decided",
		"refund_id", refundID,
		"decision", target,
		"admin_id", adminID)

	if !dto.Approve {
		model, err = s.repo.GetByID(refundID)
		if err != nil {
			return nil, err
		}
		return FromDataModel(model), nil
	}

	return s.Process(ctx, refundID)
}

// Process pushes an approved refund through the processor and the
// ledger. The caller first wins the guarded approved -> processing
// transition, so two concurrent calls (or a retry racing a slow one)
// can never both move money or apply the ledger accumulation twice.
// The processor call carries a stable idempotency key, so retrying
// after a transient failure cannot pay twice. Account-credit refunds
// skip the processor; the money stays on the platform.
func (s *Service) Process(ctx context.Context, refundID int64) (*RefundRequest, error) {
	model, err := s.repo.GetByID(refundID)
	if err != nil {
		return nil, err
	}
	if model.Status != StatusApproved {
		return nil, ErrNotApproved
	}

	txn, err := s.ledger.Get(model.TransactionID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.repo.UpdateStatus(refundID, StatusApproved, StatusProcessing)
	if err != nil {
		return nil, errors.NewInternalError("failed to claim refund for processing", err)
	}
	if !claimed {
		return nil, ErrNotApproved
	}

	if model.RefundMethod != RefundMethodAccountCredit {
		result, err := s.processor.Refund(ctx, &processortypes.RefundRequest{
			IdempotencyKey: fmt.Sprintf("refund-%d", model.ID),
			CaptureKey:     txn.ExternalID,
			AmountCents:    model.AmountCents,
			Currency:       txn.Currency,
		})
		if err != nil {
			s.logger.Error("processor refund call failed", "error", err, "refund_id", refundID)
			s.returnToApproved(refundID)
			return nil, errors.NewProcessorError("refund could not be processed", errors.ErrCodeProcessorTimeout, true).WithCause(err)
		}
		if !result.Accepted() {
			s.logger.Error("processor rejected refund",
				"refund_id", refundID,
				"outcome", result.Outcome,
				"reason", result.Reason)
			s.returnToApproved(refundID)
			code := errors.ErrCodeProcessorFatal
			if result.Retryable {
				code = errors.ErrCodeProcessorTimeout
			}
			return nil, errors.NewProcessorError("processor rejected refund: "+result.Reason, code, result.Retryable)
		}
	}

	if _, err := s.ledger.ApplyRefund(ctx, model.TransactionID, model.AmountCents); err != nil {
		s.logger.Error("failed to apply refund to ledger", "error", err, "refund_id", refundID)
		// Nothing accumulated; the reused processor key keeps a
		// retry from paying twice.
		s.returnToApproved(refundID)
		return nil, err
	}

	processed, err := s.repo.MarkProcessed(refundID, s.now())
	if err != nil {
		// The accumulation already landed, so the claim is kept and
		// no retry can re-apply it.
		return nil, errors.NewInternalError("failed to mark refund processed", err)
	}
	if !processed {
		return nil, ErrNotApproved
	}

	model, err = s.repo.GetByID(refundID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewRefundProcessedEvent(
		model.ID, model.TransactionID, model.RequesterID, model.AmountCents, model.RefundMethod,
	))

	s.logger.Info("refund processed",
		"refund_id", model.ID,
		"transaction_id", model.TransactionID,
		"amount_cents", model.AmountCents)

	return FromDataModel(model), nil
}

// Cancel lets the requester withdraw a still-pending request.
// Cancelled is terminal; the claim on the refundable amount is gone.
func (s *Service) Cancel(requesterID, refundID int64) (*RefundRequest, error) {
	model, err := s.repo.GetByID(refundID)
	if err != nil {
		return nil, err
	}
	if model.RequesterID != requesterID {
		return nil, ErrNotRequester
	}

	updated, err := s.repo.UpdateStatus(refundID, StatusPending, StatusCancelled)
	if err != nil {
		return nil, errors.NewInternalError("failed to cancel refund request", err)
	}
	if !updated {
		return nil, ErrNotPending
	}

	model, err = s.repo.GetByID(refundID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund request cancelled", "refund_id", refundID, "requester_id", requesterID)
	return FromDataModel(model), nil
}

func (s *Service) Get(actorID, refundID int64, isAdmin bool) (*RefundRequest, error) {
	model, err := s.repo.GetByID(refundID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && model.RequesterID != actorID {
		return nil, ErrNotRequester
	}
	return FromDataModel(model), nil
}

func (s *Service) ListMine(requesterID int64) ([]*RefundRequest, error) {
	models, err := s.repo.ListByRequester(requesterID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list refund requests", err)
	}
	return FromDataModelSlice(models), nil
}

func (s *Service) ListPending() ([]*RefundRequest, error) {
	models, err := s.repo.ListByStatus(StatusPending)
	if err != nil {
		return nil, errors.NewInternalError("failed to list pending refunds", err)
	}
	return FromDataModelSlice(models), nil
}

// returnToApproved releases the processing claim after a failed
// attempt so Process can be retried.
func (s *Service) returnToApproved(refundID int64) {
	if _, err := s.repo.UpdateStatus(refundID, StatusProcessing, StatusApproved); err != nil {
		s.logger.Error("failed to return refund to approved", "error", err, "refund_id", refundID)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish refund event", "error", err, "event_type", event.EventType())
	}
}
