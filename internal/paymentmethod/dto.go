package paymentmethod

import (
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/core/common/validation"
)

const (
	MethodTypeCard   = "card"
	MethodTypeWallet = "wallet"
)

type AddMethodDTO struct {
	MethodType  string `json:"method_type" validate:"required,oneof=card wallet"`
	CardNumber  string `json:"card_number" validate:"required"`
	ExpiryMonth int    `json:"expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" validate:"required"`
	SetDefault  bool   `json:"set_default"`
}

// Validate runs tag validation first, then the card-specific checks
// that tags cannot express.
func (d *AddMethodDTO) Validate(now time.Time) *errors.AppError {
	if err := validation.ValidateStruct(d); err != nil {
		return err
	}
	if err := validation.ValidateCardNumber(d.CardNumber); err != nil {
		return err
	}
	if err := validation.ValidateExpiry(d.ExpiryMonth, d.ExpiryYear, now); err != nil {
		return err
	}
	return nil
}

type MethodListResponse struct {
	Methods []*PaymentMethod `json:"methods"`
	Total   int              `json:"total"`
}
