package paymentmethod

import (
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	pmDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/paymentmethod"
)

// PaymentMethod is the registry's view of a stored billing instrument.
// Raw card numbers never persist; only the mask and brand survive
// validation.
type PaymentMethod struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	MethodType   string    `json:"method_type"`
	MaskedNumber string    `json:"masked_number"`
	Brand        string    `json:"brand"`
	ExpiryMonth  int       `json:"expiry_month"`
	ExpiryYear   int       `json:"expiry_year"`
	IsDefault    bool      `json:"is_default"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var (
	ErrMethodNotFound = errors.NewNotFoundError("payment method not found", errors.ErrCodeMethodNotFound)
	ErrMethodInactive = errors.NewNotFoundError("payment method is inactive", errors.ErrCodeMethodNotFound)
	ErrNotOwner       = errors.NewForbiddenError("payment method belongs to another owner", errors.ErrCodeNotOwner)
)

func ToDataModel(m *PaymentMethod) *pmDatamodel.PaymentMethod {
	return &pmDatamodel.PaymentMethod{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		MethodType:   m.MethodType,
		MaskedNumber: m.MaskedNumber,
		Brand:        m.Brand,
		ExpiryMonth:  m.ExpiryMonth,
		ExpiryYear:   m.ExpiryYear,
		IsDefault:    m.IsDefault,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func FromDataModel(m *pmDatamodel.PaymentMethod) *PaymentMethod {
	return &PaymentMethod{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		MethodType:   m.MethodType,
		MaskedNumber: m.MaskedNumber,
		Brand:        m.Brand,
		ExpiryMonth:  m.ExpiryMonth,
		ExpiryYear:   m.ExpiryYear,
		IsDefault:    m.IsDefault,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func FromDataModelSlice(methods []*pmDatamodel.PaymentMethod) []*PaymentMethod {
	result := make([]*PaymentMethod, len(methods))
	for i, m := range methods {
		result[i] = FromDataModel(m)
	}
	return result
}
