package refund

import (
	"time"
)

type RefundRequest struct {
	ID            int64      `gorm:"primaryKey"`
	TransactionID int64      `gorm:"column:transaction_id;not null;index"`
	RequesterID   int64      `gorm:"column:requester_id;not null;index"`
	AmountCents   int64      `gorm:"column:amount_cents;not null"`
	Reason        string     `gorm:"column:reason;not null"`
	Description   *string    `gorm:"column:description"`
	Status        string     `gorm:"column:status;not null;default:pending"`
	RefundMethod  string     `gorm:"column:refund_method;not null"`
	AdminNotes    *string    `gorm:"column:admin_notes"`
	DecidedBy     *int64     `gorm:"column:decided_by"`
	DecidedAt     *time.Time `gorm:"column:decided_at"`
	ProcessedAt   *time.Time `gorm:"column:processed_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;default:now()"`
}

func (RefundRequest) TableName() string {
	return "refund_requests"
}
