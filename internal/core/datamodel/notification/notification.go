package notification

import (
	"encoding/json"
	"time"
)

type Notification struct {
	ID            int64           `gorm:"primaryKey"`
	ExternalID    string          `gorm:"column:external_id;not null;uniqueIndex"`
	RecipientID   int64           `gorm:"column:recipient_id;not null;index"`
	RecipientType string          `gorm:"column:recipient_type;not null"`
	NotifType     string          `gorm:"column:notif_type;not null"`
	Payload       json.RawMessage `gorm:"column:payload;type:jsonb"`
	IsRead        bool            `gorm:"column:is_read;default:false"`
	SentAt        *time.Time      `gorm:"column:sent_at"`
	ReadAt        *time.Time      `gorm:"column:read_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;default:now()"`
}

func (Notification) TableName() string {
	return "notifications"
}
