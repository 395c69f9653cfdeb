package postgres

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	notifDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/tutor-billing/internal/notification"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.RepositoryAPI {
	return &NotificationRepository{db: db}
}

// Create inserts the notification unless its external_id already
// exists. The returned flag tells the caller whether a row landed.
func (r *NotificationRepository) Create(model *notifDatamodel.Notification) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *NotificationRepository) GetByID(id int64) (*notifDatamodel.Notification, error) {
	var model notifDatamodel.Notification
	err := r.db.Where("id = ?", id).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, notification.ErrNotificationNotFound
		}
		return nil, err
	}
	return &model, nil
}

func (r *NotificationRepository) ListByRecipient(recipientID int64, unreadOnly bool) ([]*notifDatamodel.Notification, error) {
	query := r.db.Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var models []*notifDatamodel.Notification
	err := query.Order("created_at DESC").Find(&models).Error
	return models, err
}

func (r *NotificationRepository) CountUnread(recipientID int64) (int64, error) {
	var count int64
	err := r.db.Model(&notifDatamodel.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) MarkRead(id, recipientID int64, readAt time.Time) (bool, error) {
	result := r.db.Model(&notifDatamodel.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": readAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *NotificationRepository) MarkAllRead(recipientID int64, readAt time.Time) (int64, error) {
	result := r.db.Model(&notifDatamodel.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": readAt,
		})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepository) MarkSent(id int64, sentAt time.Time) error {
	return r.db.Model(&notifDatamodel.Notification{}).
		Where("id = ?", id).
		Update("sent_at", sentAt).Error
}
