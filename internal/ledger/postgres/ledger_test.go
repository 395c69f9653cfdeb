package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	txnDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/transaction"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
)

func TestLedgerRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Ledger Repository Suite")
}

// TransactionSQLite is a test-specific version with text instead of jsonb for SQLite compatibility
type TransactionSQLite struct {
	ID                int64      `gorm:"primaryKey"`
	ExternalID        string     `gorm:"column:external_id;not null;uniqueIndex"`
	PayerID           int64      `gorm:"column:payer_id;not null;index"`
	StudentID         *int64     `gorm:"column:student_id"`
	AmountCents       int64      `gorm:"column:amount_cents;not null"`
	Currency          string     `gorm:"column:currency;default:USD"`
	TxnType           string     `gorm:"column:txn_type;not null"`
	Status            string     `gorm:"column:status;default:pending"`
	PaymentMethodID   int64      `gorm:"column:payment_method_id;not null"`
	ReservationID     *int64     `gorm:"column:reservation_id"`
	RefundAmountCents int64      `gorm:"column:refund_amount_cents;default:0"`
	FailureReason     *string    `gorm:"column:failure_reason"`
	ProcessorResponse string     `gorm:"column:processor_response;type:text"` // Use text for SQLite
	SettledAt         *time.Time `gorm:"column:settled_at"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (TransactionSQLite) TableName() string {
	return "transactions"
}

var _ = ginkgo.Describe("LedgerRepository", func() {
	var (
		db   *gorm.DB
		repo ledger.RepositoryAPI
	)

	newPendingTxn := func(externalID string, amountCents int64) *txnDatamodel.Transaction {
		txn := &txnDatamodel.Transaction{
			ExternalID:      externalID,
			PayerID:         7,
			AmountCents:     amountCents,
			Currency:        "USD",
			TxnType:         ledger.TxnTypeSessionPayment,
			Status:          ledger.StatusPending,
			PaymentMethodID: 1,
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}
		gomega.Expect(repo.Create(txn)).To(gomega.Succeed())
		return txn
	}

	settleCompleted := func(id int64) {
		ok, err := repo.Settle(id, ledger.StatusCompleted, nil, nil, time.Now().UTC())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ok).To(gomega.BeTrue())
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		// Auto-migrate using the SQLite-compatible struct
		err = db.AutoMigrate(&TransactionSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewLedgerRepository(db)
	})

	ginkgo.Describe("Create", func() {
		ginkgo.It("should insert a transaction and set ID", func() {
			txn := newPendingTxn("ext-1", 5000)

			gomega.Expect(txn.ID).To(gomega.BeNumerically(">", 0))
		})

		ginkgo.It("should reject a duplicate external ID", func() {
			newPendingTxn("ext-1", 5000)

			dup := &txnDatamodel.Transaction{
				ExternalID:      "ext-1",
				PayerID:         8,
				AmountCents:     100,
				TxnType:         ledger.TxnTypeSessionPayment,
				Status:          ledger.StatusPending,
				PaymentMethodID: 1,
			}

			gomega.Expect(repo.Create(dup)).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("GetByExternalID", func() {
		ginkgo.It("should find the row", func() {
			created := newPendingTxn("ext-1", 5000)

			found, err := repo.GetByExternalID("ext-1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(found.ID).To(gomega.Equal(created.ID))
		})

		ginkgo.It("should map a missing row to the domain error", func() {
			_, err := repo.GetByExternalID("nope")

			gomega.Expect(err).To(gomega.Equal(ledger.ErrTransactionNotFound))
		})
	})

	ginkgo.Describe("Settle", func() {
		ginkgo.It("should flip a pending row exactly once", func() {
			txn := newPendingTxn("ext-1", 5000)
			response := json.RawMessage(`{"outcome":"accepted"}`)

			ok, err := repo.Settle(txn.ID, ledger.StatusCompleted, nil, response, time.Now().UTC())
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			// Replay finds no pending row to flip.
			ok, err = repo.Settle(txn.ID, ledger.StatusFailed, nil, nil, time.Now().UTC())
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())

			stored, err := repo.GetByID(txn.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(ledger.StatusCompleted))
			gomega.Expect(stored.SettledAt).ToNot(gomega.BeNil())
		})

		ginkgo.It("should record the failure reason on a failed settlement", func() {
			txn := newPendingTxn("ext-1", 5000)
			reason := "card_declined"

			ok, err := repo.Settle(txn.ID, ledger.StatusFailed, &reason, nil, time.Now().UTC())
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			stored, _ := repo.GetByID(txn.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(ledger.StatusFailed))
			gomega.Expect(*stored.FailureReason).To(gomega.Equal("card_declined"))
		})
	})

	ginkgo.Describe("AddRefund", func() {
		ginkgo.It("should accumulate partial refunds and flip to refunded on the last one", func() {
			txn := newPendingTxn("ext-1", 5000)
			settleCompleted(txn.ID)

			ok, err := repo.AddRefund(txn.ID, 3000)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			stored, _ := repo.GetByID(txn.ID)
			gomega.Expect(stored.RefundAmountCents).To(gomega.Equal(int64(3000)))
			gomega.Expect(stored.Status).To(gomega.Equal(ledger.StatusCompleted))

			ok, err = repo.AddRefund(txn.ID, 2000)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			stored, _ = repo.GetByID(txn.ID)
			gomega.Expect(stored.RefundAmountCents).To(gomega.Equal(int64(5000)))
			gomega.Expect(stored.Status).To(gomega.Equal(ledger.StatusRefunded))
		})

		ginkgo.It("should refuse a refund that would overdraw the transaction", func() {
			txn := newPendingTxn("ext-1", 5000)
			settleCompleted(txn.ID)

			ok, err := repo.AddRefund(txn.ID, 3000)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			ok, err = repo.AddRefund(txn.ID, 2500)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())

			stored, _ := repo.GetByID(txn.ID)
			gomega.Expect(stored.RefundAmountCents).To(gomega.Equal(int64(3000)))
		})

		ginkgo.It("should refuse refunding a pending transaction", func() {
			txn := newPendingTxn("ext-1", 5000)

			ok, err := repo.AddRefund(txn.ID, 1000)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("History", func() {
		ginkgo.It("should filter by type and status and page results", func() {
			newPendingTxn("ext-1", 5000)
			second := newPendingTxn("ext-2", 7000)
			settleCompleted(second.ID)

			completed, err := repo.GetByPayerID(7, ledger.HistoryQuery{Status: ledger.StatusCompleted, Limit: 10})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(completed).To(gomega.HaveLen(1))
			gomega.Expect(completed[0].ExternalID).To(gomega.Equal("ext-2"))

			count, err := repo.CountByPayerID(7, ledger.HistoryQuery{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(int64(2)))
		})
	})
})
