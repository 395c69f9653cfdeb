package postgres

import (
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	guardianDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/guardian"
	"github.com/frahmantamala/tutor-billing/internal/guardian"
)

func TestGuardianRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Guardian Repository Suite")
}

// SQLite-compatible copies of the guardian tables; the datamodel's
// now() column defaults are postgres-only.
type ControlSQLite struct {
	ID                       int64     `gorm:"primaryKey"`
	PaymentMethodID          int64     `gorm:"column:payment_method_id;not null;uniqueIndex"`
	GuardianID               int64     `gorm:"column:guardian_id;not null;index"`
	PerTransactionLimitCents *int64    `gorm:"column:per_transaction_limit_cents"`
	MonthlyLimitCents        *int64    `gorm:"column:monthly_limit_cents"`
	MonthSpendCents          int64     `gorm:"column:month_spend_cents;not null;default:0"`
	BillingTimezone          string    `gorm:"column:billing_timezone;default:UTC"`
	MonthKey                 string    `gorm:"column:month_key;not null"`
	CreatedAt                time.Time `gorm:"column:created_at"`
	UpdatedAt                time.Time `gorm:"column:updated_at"`
}

func (ControlSQLite) TableName() string {
	return "guardian_controls"
}

type LinkSQLite struct {
	ID        int64     `gorm:"primaryKey"`
	ControlID int64     `gorm:"column:control_id;not null;uniqueIndex:idx_control_student"`
	StudentID int64     `gorm:"column:student_id;not null;uniqueIndex:idx_control_student"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (LinkSQLite) TableName() string {
	return "guardian_links"
}

type ReservationSQLite struct {
	ID          int64     `gorm:"primaryKey"`
	ControlID   int64     `gorm:"column:control_id;not null;index"`
	StudentID   int64     `gorm:"column:student_id;not null"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	MonthKey    string    `gorm:"column:month_key;not null"`
	Status      string    `gorm:"column:status;default:held"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (ReservationSQLite) TableName() string {
	return "guardian_reservations"
}

var _ = ginkgo.Describe("GuardianRepository", func() {
	var (
		db   *gorm.DB
		repo guardian.RepositoryAPI
	)

	limits := func(cents int64) *int64 { return &cents }

	newControl := func(methodID int64, monthlyLimit *int64) *guardianDatamodel.Control {
		control := &guardianDatamodel.Control{
			PaymentMethodID:   methodID,
			GuardianID:        42,
			MonthlyLimitCents: monthlyLimit,
			BillingTimezone:   "UTC",
			MonthKey:          "2026-08",
			CreatedAt:         time.Now().UTC(),
			UpdatedAt:         time.Now().UTC(),
		}
		gomega.Expect(repo.CreateControl(control)).To(gomega.Succeed())
		return control
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		// Auto-migrate using the SQLite-compatible structs
		err = db.AutoMigrate(
			&ControlSQLite{},
			&LinkSQLite{},
			&ReservationSQLite{},
		)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewGuardianRepository(db)
	})

	ginkgo.Describe("TryReserveSpend", func() {
		ginkgo.It("should reserve up to the limit and refuse past it", func() {
			control := newControl(1, limits(10000))

			ok, err := repo.TryReserveSpend(control.ID, "2026-08", 6000)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			// Exactly hitting the limit is allowed.
			ok, err = repo.TryReserveSpend(control.ID, "2026-08", 4000)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			ok, err = repo.TryReserveSpend(control.ID, "2026-08", 1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())

			stored, _ := repo.GetControlByID(control.ID)
			gomega.Expect(stored.MonthSpendCents).To(gomega.Equal(int64(10000)))
		})

		ginkgo.It("should treat a nil monthly limit as unlimited", func() {
			control := newControl(1, nil)

			ok, err := repo.TryReserveSpend(control.ID, "2026-08", 1_000_000)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
		})

		ginkgo.It("should refuse when the stored month key is stale", func() {
			control := newControl(1, limits(10000))

			ok, err := repo.TryReserveSpend(control.ID, "2026-09", 100)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("ResetMonth", func() {
		ginkgo.It("should zero spend and advance the key exactly once", func() {
			control := newControl(1, limits(10000))
			ok, _ := repo.TryReserveSpend(control.ID, "2026-08", 6000)
			gomega.Expect(ok).To(gomega.BeTrue())

			reset, err := repo.ResetMonth(control.ID, "2026-08", "2026-09")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(reset).To(gomega.BeTrue())

			// A racing reset from the same old key finds nothing to do.
			reset, err = repo.ResetMonth(control.ID, "2026-08", "2026-09")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(reset).To(gomega.BeFalse())

			stored, _ := repo.GetControlByID(control.ID)
			gomega.Expect(stored.MonthKey).To(gomega.Equal("2026-09"))
			gomega.Expect(stored.MonthSpendCents).To(gomega.BeZero())
		})
	})

	ginkgo.Describe("SubtractSpend", func() {
		ginkgo.It("should subtract within the same month and floor at zero", func() {
			control := newControl(1, limits(10000))
			ok, _ := repo.TryReserveSpend(control.ID, "2026-08", 3000)
			gomega.Expect(ok).To(gomega.BeTrue())

			gomega.Expect(repo.SubtractSpend(control.ID, "2026-08", 2000)).To(gomega.Succeed())
			stored, _ := repo.GetControlByID(control.ID)
			gomega.Expect(stored.MonthSpendCents).To(gomega.Equal(int64(1000)))

			gomega.Expect(repo.SubtractSpend(control.ID, "2026-08", 5000)).To(gomega.Succeed())
			stored, _ = repo.GetControlByID(control.ID)
			gomega.Expect(stored.MonthSpendCents).To(gomega.BeZero())
		})

		ginkgo.It("should be a no-op after the month rolled over", func() {
			control := newControl(1, limits(10000))
			ok, _ := repo.TryReserveSpend(control.ID, "2026-08", 3000)
			gomega.Expect(ok).To(gomega.BeTrue())
			reset, _ := repo.ResetMonth(control.ID, "2026-08", "2026-09")
			gomega.Expect(reset).To(gomega.BeTrue())

			gomega.Expect(repo.SubtractSpend(control.ID, "2026-08", 3000)).To(gomega.Succeed())

			stored, _ := repo.GetControlByID(control.ID)
			gomega.Expect(stored.MonthSpendCents).To(gomega.BeZero())
		})
	})

	ginkgo.Describe("Links", func() {
		ginkgo.It("should upsert idempotently and report linkage", func() {
			control := newControl(1, limits(10000))

			gomega.Expect(repo.UpsertLink(control.ID, 9)).To(gomega.Succeed())
			gomega.Expect(repo.UpsertLink(control.ID, 9)).To(gomega.Succeed())

			linked, err := repo.IsStudentLinked(control.ID, 9)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(linked).To(gomega.BeTrue())

			students, err := repo.GetLinkedStudentIDs(control.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(students).To(gomega.Equal([]int64{9}))

			gomega.Expect(repo.DeleteLink(control.ID, 9)).To(gomega.Succeed())
			linked, _ = repo.IsStudentLinked(control.ID, 9)
			gomega.Expect(linked).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("Reservations", func() {
		ginkgo.It("should move a hold through its lifecycle exactly once", func() {
			control := newControl(1, limits(10000))
			reservation := &guardianDatamodel.Reservation{
				ControlID:   control.ID,
				StudentID:   9,
				AmountCents: 3000,
				MonthKey:    "2026-08",
				Status:      guardianDatamodel.ReservationHeld,
				CreatedAt:   time.Now().UTC(),
				UpdatedAt:   time.Now().UTC(),
			}
			gomega.Expect(repo.CreateReservation(reservation)).To(gomega.Succeed())

			ok, err := repo.UpdateReservationStatus(reservation.ID, guardianDatamodel.ReservationHeld, guardianDatamodel.ReservationCommitted)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			// A release racing the commit loses.
			ok, err = repo.UpdateReservationStatus(reservation.ID, guardianDatamodel.ReservationHeld, guardianDatamodel.ReservationReleased)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())

			stored, err := repo.GetReservationByID(reservation.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(guardianDatamodel.ReservationCommitted))
		})

		ginkgo.It("should map a missing reservation to the domain error", func() {
			_, err := repo.GetReservationByID(404)

			gomega.Expect(err).To(gomega.Equal(guardian.ErrReservationNotFound))
		})
	})
})
