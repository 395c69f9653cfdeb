package postgres

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	guardianDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/guardian"
	"github.com/frahmantamala/tutor-billing/internal/guardian"
)

type GuardianRepository struct {
	db *gorm.DB
}

func NewGuardianRepository(db *gorm.DB) guardian.RepositoryAPI {
	return &GuardianRepository{db: db}
}

func (r *GuardianRepository) CreateControl(control *guardianDatamodel.Control) error {
	return r.db.Create(control).Error
}

func (r *GuardianRepository) GetControlByID(id int64) (*guardianDatamodel.Control, error) {
	var control guardianDatamodel.Control
	err := r.db.Where("id = ?", id).First(&control).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, guardian.ErrControlNotFound
		}
		return nil, err
	}
	return &control, nil
}

func (r *GuardianRepository) GetControlByPaymentMethodID(methodID int64) (*guardianDatamodel.Control, error) {
	var control guardianDatamodel.Control
	err := r.db.Where("payment_method_id = ?", methodID).First(&control).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, guardian.ErrControlNotFound
		}
		return nil, err
	}
	return &control, nil
}

func (r *GuardianRepository) GetControlsByGuardianID(guardianID int64) ([]*guardianDatamodel.Control, error) {
	var controls []*guardianDatamodel.Control
	err := r.db.Where("guardian_id = ?", guardianID).
		Order("created_at ASC").
		Find(&controls).Error
	return controls, err
}

func (r *GuardianRepository) UpdateLimits(controlID int64, perTxn, monthly *int64) error {
	return r.db.Model(&guardianDatamodel.Control{}).
		Where("id = ?", controlID).
		Updates(map[string]interface{}{
			"per_transaction_limit_cents": perTxn,
			"monthly_limit_cents":         monthly,
			"updated_at":                  time.Now(),
		}).Error
}

func (r *GuardianRepository) UpsertLink(controlID, studentID int64) error {
	link := &guardianDatamodel.Link{
		ControlID: controlID,
		StudentID: studentID,
		CreatedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "control_id"}, {Name: "student_id"}},
		DoNothing: true,
	}).Create(link).Error
}

func (r *GuardianRepository) DeleteLink(controlID, studentID int64) error {
	return r.db.Where("control_id = ? AND student_id = ?", controlID, studentID).
		Delete(&guardianDatamodel.Link{}).Error
}

func (r *GuardianRepository) IsStudentLinked(controlID, studentID int64) (bool, error) {
	var count int64
	err := r.db.Model(&guardianDatamodel.Link{}).
		Where("control_id = ? AND student_id = ?", controlID, studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *GuardianRepository) GetLinkedStudentIDs(controlID int64) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&guardianDatamodel.Link{}).
		Where("control_id = ?", controlID).
		Order("student_id ASC").
		Pluck("student_id", &ids).Error
	return ids, err
}

// TryReserveSpend is the bounded increment: the WHERE clause keeps the
// row in the expected month and under the limit, so two racing
// authorizations can never overshoot together.
func (r *GuardianRepository) TryReserveSpend(controlID int64, monthKey string, amountCents int64) (bool, error) {
	result := r.db.Model(&guardianDatamodel.Control{}).
		Where("id = ? AND month_key = ?", controlID, monthKey).
		Where("monthly_limit_cents IS NULL OR month_spend_cents + ? <= monthly_limit_cents", amountCents).
		Updates(map[string]interface{}{
			"month_spend_cents": gorm.Expr("month_spend_cents + ?", amountCents),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GuardianRepository) AddSpend(controlID int64, monthKey string, amountCents int64) error {
	return r.db.Model(&guardianDatamodel.Control{}).
		Where("id = ? AND month_key = ?", controlID, monthKey).
		Updates(map[string]interface{}{
			"month_spend_cents": gorm.Expr("month_spend_cents + ?", amountCents),
			"updated_at":        time.Now(),
		}).Error
}

// SubtractSpend is guarded on the month key: after a rollover the hold
// no longer counts anywhere, so there is nothing to subtract.
func (r *GuardianRepository) SubtractSpend(controlID int64, monthKey string, amountCents int64) error {
	return r.db.Model(&guardianDatamodel.Control{}).
		Where("id = ? AND month_key = ?", controlID, monthKey).
		Updates(map[string]interface{}{
			"month_spend_cents": gorm.Expr("CASE WHEN month_spend_cents >= ? THEN month_spend_cents - ? ELSE 0 END", amountCents, amountCents),
			"updated_at":        time.Now(),
		}).Error
}

func (r *GuardianRepository) ResetMonth(controlID int64, fromKey, toKey string) (bool, error) {
	result := r.db.Model(&guardianDatamodel.Control{}).
		Where("id = ? AND month_key = ?", controlID, fromKey).
		Updates(map[string]interface{}{
			"month_spend_cents": 0,
			"month_key":         toKey,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GuardianRepository) GetAllControls() ([]*guardianDatamodel.Control, error) {
	var controls []*guardianDatamodel.Control
	err := r.db.Order("id ASC").Find(&controls).Error
	return controls, err
}

func (r *GuardianRepository) CreateReservation(reservation *guardianDatamodel.Reservation) error {
	return r.db.Create(reservation).Error
}

func (r *GuardianRepository) GetReservationByID(id int64) (*guardianDatamodel.Reservation, error) {
	var reservation guardianDatamodel.Reservation
	err := r.db.Where("id = ?", id).First(&reservation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, guardian.ErrReservationNotFound
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *GuardianRepository) UpdateReservationStatus(id int64, fromStatus, toStatus string) (bool, error) {
	result := r.db.Model(&guardianDatamodel.Reservation{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
