package postgres

import (
	"time"

	"gorm.io/gorm"

	pmDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/paymentmethod"
	"github.com/frahmantamala/tutor-billing/internal/paymentmethod"
)

type PaymentMethodRepository struct {
	db *gorm.DB
}

func NewPaymentMethodRepository(db *gorm.DB) paymentmethod.RepositoryAPI {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(method *pmDatamodel.PaymentMethod) error {
	return r.db.Create(method).Error
}

func (r *PaymentMethodRepository) GetByID(id int64) (*pmDatamodel.PaymentMethod, error) {
	var method pmDatamodel.PaymentMethod
	err := r.db.Where("id = ?", id).First(&method).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, paymentmethod.ErrMethodNotFound
		}
		return nil, err
	}
	return &method, nil
}

func (r *PaymentMethodRepository) GetActiveByOwnerID(ownerID int64) ([]*pmDatamodel.PaymentMethod, error) {
	var methods []*pmDatamodel.PaymentMethod
	err := r.db.Where("owner_id = ? AND is_active = ?", ownerID, true).
		Order("is_default DESC, created_at DESC").
		Find(&methods).Error
	return methods, err
}

func (r *PaymentMethodRepository) CountActiveByOwnerID(ownerID int64) (int64, error) {
	var count int64
	err := r.db.Model(&pmDatamodel.PaymentMethod{}).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Count(&count).Error
	return count, err
}

// SetDefault runs clear and set in one transaction so at most one
// active method per owner carries the default flag.
func (r *PaymentMethodRepository) SetDefault(ownerID, methodID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&pmDatamodel.PaymentMethod{}).
			Where("owner_id = ? AND is_default = ?", ownerID, true).
			Updates(map[string]interface{}{"is_default": false, "updated_at": time.Now()}).Error; err != nil {
			return err
		}

		result := tx.Model(&pmDatamodel.PaymentMethod{}).
			Where("id = ? AND owner_id = ? AND is_active = ?", methodID, ownerID, true).
			Updates(map[string]interface{}{"is_default": true, "updated_at": time.Now()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return paymentmethod.ErrMethodNotFound
		}
		return nil
	})
}

func (r *PaymentMethodRepository) Deactivate(id int64) error {
	result := r.db.Model(&pmDatamodel.PaymentMethod{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"is_active": false, "is_default": false, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return paymentmethod.ErrMethodNotFound
	}
	return nil
}

// PromoteMostRecentActive makes the newest remaining active method the
// default. No-op when the owner has no active methods left.
func (r *PaymentMethodRepository) PromoteMostRecentActive(ownerID int64) error {
	var method pmDatamodel.PaymentMethod
	err := r.db.Where("owner_id = ? AND is_active = ?", ownerID, true).
		Order("created_at DESC").
		First(&method).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	return r.db.Model(&pmDatamodel.PaymentMethod{}).
		Where("id = ?", method.ID).
		Updates(map[string]interface{}{"is_default": true, "updated_at": time.Now()}).Error
}
