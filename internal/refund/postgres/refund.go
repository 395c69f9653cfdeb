package postgres

import (
	"time"

	"gorm.io/gorm"

	refundDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/refund"
	"github.com/frahmantamala/tutor-billing/internal/refund"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) refund.RepositoryAPI {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(request *refundDatamodel.RefundRequest) error {
	return r.db.Create(request).Error
}

func (r *RefundRepository) GetByID(id int64) (*refundDatamodel.RefundRequest, error) {
	var request refundDatamodel.RefundRequest
	err := r.db.Where("id = ?", id).First(&request).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, refund.ErrRefundNotFound
		}
		return nil, err
	}
	return &request, nil
}

func (r *RefundRepository) GetOpenByTransactionID(transactionID int64) ([]*refundDatamodel.RefundRequest, error) {
	var requests []*refundDatamodel.RefundRequest
	err := r.db.Where("transaction_id = ?", transactionID).
		Where("status IN ?", []string{refund.StatusPending, refund.StatusApproved, refund.StatusProcessing}).
		Find(&requests).Error
	return requests, err
}

func (r *RefundRepository) UpdateStatus(id int64, fromStatus, toStatus string) (bool, error) {
	result := r.db.Model(&refundDatamodel.RefundRequest{}).
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

func (r *RefundRepository) MarkDecided(id int64, toStatus string, decidedBy int64, notes *string, decidedAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     toStatus,
		"decided_by": decidedBy,
		"decided_at": decidedAt,
		"updated_at": time.Now(),
	}
	if notes != nil {
		updates["admin_notes"] = *notes
	}

	result := r.db.Model(&refundDatamodel.RefundRequest{}).
		Where("id = ? AND status = ?", id, refund.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *RefundRepository) MarkProcessed(id int64, processedAt time.Time) (bool, error) {
	result := r.db.Model(&refundDatamodel.RefundRequest{}).
		Where("id = ? AND status = ?", id, refund.StatusProcessing).
		Updates(map[string]interface{}{
			"status":       refund.StatusProcessed,
			"processed_at": processedAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *RefundRepository) ListByRequester(requesterID int64) ([]*refundDatamodel.RefundRequest, error) {
	var requests []*refundDatamodel.RefundRequest
	err := r.db.Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *RefundRepository) ListByStatus(status string) ([]*refundDatamodel.RefundRequest, error) {
	var requests []*refundDatamodel.RefundRequest
	err := r.db.Where("status = ?", status).
		Order("created_at ASC").
		Find(&requests).Error
	return requests, err
}
