package transaction

import (
	"encoding/json"
	"time"
)

// Transaction rows are append-only. ExternalID doubles as the
// idempotency token for every processor call about this transaction.
type Transaction struct {
	ID                int64           `gorm:"primaryKey"`
	ExternalID        string          `gorm:"column:external_id;not null;uniqueIndex"`
	PayerID           int64           `gorm:"column:payer_id;not null;index"`
	StudentID         *int64          `gorm:"column:student_id"`
	AmountCents       int64           `gorm:"column:amount_cents;not null"`
	Currency          string          `gorm:"column:currency;not null;default:USD"`
	TxnType           string          `gorm:"column:txn_type;not null"`
	Status            string          `gorm:"column:status;not null;default:pending"`
	PaymentMethodID   int64           `gorm:"column:payment_method_id;not null"`
	ReservationID     *int64          `gorm:"column:reservation_id"`
	RefundAmountCents int64           `gorm:"column:refund_amount_cents;not null;default:0"`
	FailureReason     *string         `gorm:"column:failure_reason"`
	ProcessorResponse json.RawMessage `gorm:"column:processor_response;type:jsonb"`
	SettledAt         *time.Time      `gorm:"column:settled_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Transaction) TableName() string {
	return "transactions"
}
