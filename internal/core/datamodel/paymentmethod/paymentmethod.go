package paymentmethod

import (
	"time"
)

const (
	TypeCard        = "card"
	TypeBankAccount = "bank_account"
)

type PaymentMethod struct {
	ID           int64     `gorm:"primaryKey"`
	OwnerID      int64     `gorm:"column:owner_id;not null;index"`
	MethodType   string    `gorm:"column:method_type;not null;default:card"`
	MaskedNumber string    `gorm:"column:masked_number;not null"`
	Brand        string    `gorm:"column:brand;not null"`
	ExpiryMonth  int       `gorm:"column:expiry_month;not null"`
	ExpiryYear   int       `gorm:"column:expiry_year;not null"`
	IsDefault    bool      `gorm:"column:is_default;default:false"`
	IsActive     bool      `gorm:"column:is_active;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt    time.Time `gorm:"column:updated_at;default:now()"`
}

func (PaymentMethod) TableName() string {
	return "payment_methods"
}
