package refund_test

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
	processortypes "github.com/frahmantamala/tutor-billing/internal/core/datamodel/processor"
	refundDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/refund"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
	"github.com/frahmantamala/tutor-billing/internal/refund"
)

func TestRefundService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Refund Service Suite")
}

type mockRefundRepository struct {
	requests         map[int64]*refundDatamodel.RefundRequest
	nextID           int64
	markProcessedErr error
}

func newMockRefundRepository() *mockRefundRepository {
	return &mockRefundRepository{
		requests: make(map[int64]*refundDatamodel.RefundRequest),
		nextID:   1,
	}
}

func (m *mockRefundRepository) Create(request *refundDatamodel.RefundRequest) error {
	request.ID = m.nextID
	m.nextID++
	m.requests[request.ID] = request
	return nil
}

func (m *mockRefundRepository) GetByID(id int64) (*refundDatamodel.RefundRequest, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, refund.ErrRefundNotFound
	}
	copied := *request
	return &copied, nil
}

func (m *mockRefundRepository) GetOpenByTransactionID(transactionID int64) ([]*refundDatamodel.RefundRequest, error) {
	var result []*refundDatamodel.RefundRequest
	for _, request := range m.requests {
		if request.TransactionID != transactionID {
			continue
		}
		switch request.Status {
		case refund.StatusPending, refund.StatusApproved, refund.StatusProcessing:
			copied := *request
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockRefundRepository) UpdateStatus(id int64, fromStatus, toStatus string) (bool, error) {
	request, ok := m.requests[id]
	if !ok || request.Status != fromStatus {
		return false, nil
	}
	request.Status = toStatus
	return true, nil
}

func (m *mockRefundRepository) MarkDecided(id int64, toStatus string, decidedBy int64, notes *string, decidedAt time.Time) (bool, error) {
	request, ok := m.requests[id]
	if !ok || request.Status != refund.StatusPending {
		return false, nil
	}
	request.Status = toStatus
	request.DecidedBy = &decidedBy
	request.DecidedAt = &decidedAt
	request.AdminNotes = notes
	return true, nil
}

func (m *mockRefundRepository) MarkProcessed(id int64, processedAt time.Time) (bool, error) {
	if m.markProcessedErr != nil {
		err := m.markProcessedErr
		m.markProcessedErr = nil
		return false, err
	}
	request, ok := m.requests[id]
	if !ok || request.Status != refund.StatusProcessing {
		return false, nil
	}
	request.Status = refund.StatusProcessed
	request.ProcessedAt = &processedAt
	return true, nil
}

func (m *mockRefundRepository) ListByRequester(requesterID int64) ([]*refundDatamodel.RefundRequest, error) {
	var result []*refundDatamodel.RefundRequest
	for _, request := range m.requests {
		if request.RequesterID == requesterID {
			copied := *request
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockRefundRepository) ListByStatus(status string) ([]*refundDatamodel.RefundRequest, error) {
	var result []*refundDatamodel.RefundRequest
	for _, request := range m.requests {
		if request.Status == status {
			copied := *request
			result = append(result, &copied)
		}
	}
	return result, nil
}

type mockRefundLedger struct {
	txns       map[int64]*ledger.Transaction
	applyCalls int
}

func (m *mockRefundLedger) Get(transactionID int64) (*ledger.Transaction, error) {
	txn, ok := m.txns[transactionID]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	copied := *txn
	return &copied, nil
}

func (m *mockRefundLedger) ApplyRefund(ctx context.Context, transactionID, amountCents int64) (*ledger.Transaction, error) {
	m.applyCalls++
	txn, ok := m.txns[transactionID]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	if txn.Status != ledger.StatusCompleted {
		return nil, ledger.ErrNotRefundable
	}
	if txn.RefundAmountCents+amountCents > txn.AmountCents {
		return nil, ledger.ErrRefundExceedsTotal
	}
	txn.RefundAmountCents += amountCents
	if txn.RefundAmountCents >= txn.AmountCents {
		txn.Status = ledger.StatusRefunded
	}
	copied := *txn
	return &copied, nil
}

type mockRefundProcessor struct {
	requests []*processortypes.RefundRequest
	err      error
	result   *processortypes.Result
}

func (m *mockRefundProcessor) Refund(ctx context.Context, req *processortypes.RefundRequest) (*processortypes.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)
	if m.result != nil {
		return m.result, nil
	}
	return &processortypes.Result{Outcome: processortypes.OutcomeAccepted, ProviderRef: "prov-1"}, nil
}

var _ = Describe("RefundService", func() {
	var (
		service       *refund.Service
		mockRepo      *mockRefundRepository
		mockLedger    *mockRefundLedger
		mockProcessor *mockRefundProcessor
		ctx           context.Context
	)

	const (
		payerID = int64(7)
		adminID = int64(100)
		txnID   = int64(1)
	)

	request := func(amountCents int64) (*refund.RefundRequest, error) {
		return service.Request(ctx, payerID, &refund.RequestRefundDTO{
			TransactionID: txnID,
			AmountCents:   amountCents,
			Reason:        "session_cancelled",
		})
	}

	approve := func(refundID int64) (*refund.RefundRequest, error) {
		return service.Decide(ctx, adminID, refundID, &refund.DecideRefundDTO{Approve: true})
	}

	BeforeEach(func() {
		mockRepo = newMockRefundRepository()
		mockLedger = &mockRefundLedger{
			txns: map[int64]*ledger.Transaction{
				txnID: {
					ID:          txnID,
					ExternalID:  "ext-abc",
					PayerID:     payerID,
					AmountCents: 5000,
					Currency:    "USD",
					TxnType:     ledger.TxnTypeSessionPayment,
					Status:      ledger.StatusCompleted,
				},
			},
		}
		mockProcessor = &mockRefundProcessor{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = refund.NewService(mockRepo, mockLedger, mockProcessor, events.NewEventBus(logger), logger)
		ctx = context.Background()
	})

	Describe("Request", func() {
		It("should open a pending request for the payer", func() {
			result, err := request(2000)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(refund.StatusPending))
			Expect(result.RefundMethod).To(Equal(refund.RefundMethodOriginal))
		})

		It("should reject a requester who is not the payer", func() {
			_, err := service.Request(ctx, 999, &refund.RequestRefundDTO{
				TransactionID: txnID,
				AmountCents:   2000,
				Reason:        "other",
			})

			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeForbidden))
		})

		It("should reject a pending transaction", func() {
			mockLedger.txns[txnID].Status = ledger.StatusPending

			_, err := request(2000)

			Expect(err).To(Equal(refund.ErrTxnNotRefundable))
		})

		It("should reject a fee transaction", func() {
			mockLedger.txns[txnID].TxnType = ledger.TxnTypeFee

			_, err := request(2000)

			Expect(err).To(Equal(refund.ErrTxnNotRefundable))
		})

		It("should allow only one open request per transaction", func() {
			_, err := request(1000)
			Expect(err).ToNot(HaveOccurred())

			_, err = request(1000)

			Expect(err).To(Equal(refund.ErrDuplicateRequest))
		})

		It("should allow a new request after the open one is cancelled", func() {
			first, err := request(1000)
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Cancel(payerID, first.ID)
			Expect(err).ToNot(HaveOccurred())

			_, err = request(1500)

			Expect(err).ToNot(HaveOccurred())
		})

		Context("after a partial refund was processed", func() {
			BeforeEach(func() {
				first, err := request(3000)
				Expect(err).ToNot(HaveOccurred())
				_, err = approve(first.ID)
				Expect(err).ToNot(HaveOccurred())
			})

			It("should reject an amount above the remaining refundable", func() {
				_, err := request(2500)

				Expect(err).To(Equal(refund.ErrRefundExceedsTotal))
			})

			It("should accept an amount within the remaining refundable", func() {
				result, err := request(2000)

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Status).To(Equal(refund.StatusPending))
			})
		})
	})

	Describe("Decide", func() {
		It("should reject and stop there", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())

			result, err := service.Decide(ctx, adminID, req.ID, &refund.DecideRefundDTO{Approve: false})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(refund.StatusRejected))
			Expect(*result.DecidedBy).To(Equal(adminID))
			Expect(mockProcessor.requests).To(BeEmpty())
		})

		It("should process immediately on approval", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())

			result, err := approve(req.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(refund.StatusProcessed))
			Expect(result.ProcessedAt).ToNot(BeNil())

			Expect(mockProcessor.requests).To(HaveLen(1))
			Expect(mockProcessor.requests[0].IdempotencyKey).To(Equal(fmt.Sprintf("refund-%d", req.ID)))
			Expect(mockProcessor.requests[0].CaptureKey).To(Equal("ext-abc"))

			Expect(mockLedger.txns[txnID].RefundAmountCents).To(Equal(int64(2000)))
			Expect(mockLedger.txns[txnID].Status).To(Equal(ledger.StatusCompleted))
		})

		It("should skip the processor for an account credit refund", func() {
			req, err := service.Request(ctx, payerID, &refund.RequestRefundDTO{
				TransactionID: txnID,
				AmountCents:   2000,
				Reason:        "quality_issue",
				RefundMethod:  refund.RefundMethodAccountCredit,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(req.RefundMethod).To(Equal(refund.RefundMethodAccountCredit))

			result, err := approve(req.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(refund.StatusProcessed))
			Expect(mockProcessor.requests).To(BeEmpty())
			Expect(mockLedger.txns[txnID].RefundAmountCents).To(Equal(int64(2000)))
		})

		It("should flip the ledger entry to refunded on a full refund", func() {
			req, err := request(5000)
			Expect(err).ToNot(HaveOccurred())

			_, err = approve(req.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(mockLedger.txns[txnID].Status).To(Equal(ledger.StatusRefunded))
		})

		It("should refuse deciding an already decided request", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())
			_, err = approve(req.ID)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Decide(ctx, adminID, req.ID, &refund.DecideRefundDTO{Approve: false})

			Expect(err).To(Equal(refund.ErrNotPending))
		})
	})

	Describe("Process retry", func() {
		It("should keep the request approved after a transient processor failure", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())
			mockProcessor.err = fmt.Errorf("connection reset")

			_, err = approve(req.ID)

			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeProcessor))
			Expect(appErr.Retryable).To(BeTrue())
			Expect(mockRepo.requests[req.ID].Status).To(Equal(refund.StatusApproved))
			Expect(mockLedger.txns[txnID].RefundAmountCents).To(BeZero())

			// Retry with the processor back up.
			mockProcessor.err = nil
			result, err := service.Process(ctx, req.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(refund.StatusProcessed))
			Expect(mockLedger.txns[txnID].RefundAmountCents).To(Equal(int64(2000)))
		})

		It("should apply the ledger accumulation at most once when marking processed fails", func() {
			req, err := request(2500)
			Expect(err).ToNot(HaveOccurred())
			mockRepo.markProcessedErr = fmt.Errorf("connection reset")

			_, err = approve(req.ID)

			Expect(err).To(HaveOccurred())
			Expect(mockLedger.applyCalls).To(Equal(1))
			Expect(mockLedger.txns[txnID].RefundAmountCents).To(Equal(int64(2500)))
			// The claim survives the failure, so a retry cannot move
			// money or touch the ledger again.
			Expect(mockRepo.requests[req.ID].Status).To(Equal(refund.StatusProcessing))

			_, err = service.Process(ctx, req.ID)

			Expect(err).To(Equal(refund.ErrNotApproved))
			Expect(mockLedger.applyCalls).To(Equal(1))
			Expect(mockProcessor.requests).To(HaveLen(1))
			Expect(mockLedger.txns[txnID].RefundAmountCents).To(Equal(int64(2500)))
		})

		It("should refuse reprocessing an already processed request", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())
			_, err = approve(req.ID)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Process(ctx, req.ID)

			Expect(err).To(Equal(refund.ErrNotApproved))
			Expect(mockLedger.applyCalls).To(Equal(1))
			Expect(mockLedger.txns[txnID].RefundAmountCents).To(Equal(int64(2000)))
		})

		It("should refuse processing a pending request", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Process(ctx, req.ID)

			Expect(err).To(Equal(refund.ErrNotApproved))
		})
	})

	Describe("Cancel", func() {
		It("should let only the requester cancel, and only while pending", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Cancel(999, req.ID)
			Expect(err).To(Equal(refund.ErrNotRequester))

			result, err := service.Cancel(payerID, req.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(refund.StatusCancelled))

			_, err = service.Cancel(payerID, req.ID)
			Expect(err).To(Equal(refund.ErrNotPending))
		})

		It("should refuse cancelling an approved request", func() {
			req, err := request(2000)
			Expect(err).ToNot(HaveOccurred())
			mockProcessor.err = fmt.Errorf("down")
			_, _ = approve(req.ID)

			_, err = service.Cancel(payerID, req.ID)

			Expect(err).To(Equal(refund.ErrNotPending))
		})
	})
})
