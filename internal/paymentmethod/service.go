package paymentmethod

import (
	"log/slog"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	pmDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/paymentmethod"
	"github.com/frahmantamala/tutor-billing/internal/core/common/validation"
)

// RepositoryAPI defines the data access methods for payment methods.
type RepositoryAPI interface {
	Create(method *pmDatamodel.PaymentMethod) error
	GetByID(id int64) (*pmDatamodel.PaymentMethod, error)
	GetActiveByOwnerID(ownerID int64) ([]*pmDatamodel.PaymentMethod, error)
	CountActiveByOwnerID(ownerID int64) (int64, error)
	// SetDefault clears the owner's current default and marks the given
	// active method as default inside a single transaction.
	SetDefault(ownerID, methodID int64) error
	Deactivate(id int64) error
	PromoteMostRecentActive(ownerID int64) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// AddMethod validates and stores a new billing instrument. The raw
// number is reduced to mask plus brand before anything is persisted.
// The owner's first active method becomes the default automatically.
func (s *Service) AddMethod(ownerID int64, dto *AddMethodDTO) (*PaymentMethod, error) {
	if err := dto.Validate(s.now()); err != nil {
		s.logger.Error("payment method validation failed", "error", err, "owner_id", ownerID)
		return nil, err
	}

	activeCount, err := s.repo.CountActiveByOwnerID(ownerID)
	if err != nil {
		s.logger.Error("failed to count active methods", "error", err, "owner_id", ownerID)
		return nil, errors.NewInternalError("failed to add payment method", err)
	}

	model := &pmDatamodel.PaymentMethod{
		OwnerID:      ownerID,
		MethodType:   dto.MethodType,
		MaskedNumber: validation.MaskCardNumber(dto.CardNumber),
		Brand:        validation.DetectBrand(dto.CardNumber),
		ExpiryMonth:  dto.ExpiryMonth,
		ExpiryYear:   dto.ExpiryYear,
		IsDefault:    activeCount == 0,
		IsActive:     true,
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
	}

	if err := s.repo.Create(model); err != nil {
		s.logger.Error("failed to create payment method", "error", err, "owner_id", ownerID)
		return nil, errors.NewInternalError("failed to add payment method", err)
	}

	if dto.SetDefault && !model.IsDefault {
		if err := s.repo.SetDefault(ownerID, model.ID); err != nil {
			s.logger.Error("failed to set new method as default", "error", err, "method_id", model.ID)
			return nil, errors.NewInternalError("failed to add payment method", err)
		}
		model.IsDefault = true
	}

	s.logger.Info("payment method added",
		"method_id", model.ID,
		"owner_id", ownerID,
		"brand", model.Brand,
		"is_default", model.IsDefault)

	return FromDataModel(model), nil
}

// SetDefaultMethod moves the default flag atomically so the owner never
// holds two defaults, even under concurrent calls.
func (s *Service) SetDefaultMethod(ownerID, methodID int64) (*PaymentMethod, error) {
	model, err := s.repo.GetByID(methodID)
	if err != nil {
		return nil, err
	}
	if model.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	if !model.IsActive {
		return nil, ErrMethodInactive
	}

	if err := s.repo.SetDefault(ownerID, methodID); err != nil {
		s.logger.Error("failed to set default method", "error", err, "method_id", methodID)
		return nil, errors.NewInternalError("failed to set default payment method", err)
	}

	model.IsDefault = true
	s.logger.Info("default payment method changed", "owner_id", ownerID, "method_id", methodID)
	return FromDataModel(model), nil
}

// RemoveMethod soft-deactivates the instrument so historical
// transactions keep their reference. Removing the default promotes the
// most recently added active method, if any remain.
func (s *Service) RemoveMethod(ownerID, methodID int64) error {
	model, err := s.repo.GetByID(methodID)
	if err != nil {
		return err
	}
	if model.OwnerID != ownerID {
		return ErrNotOwner
	}
	if !model.IsActive {
		return ErrMethodInactive
	}

	if err := s.repo.Deactivate(methodID); err != nil {
		s.logger.Error("failed to deactivate payment method", "error", err, "method_id", methodID)
		return errors.NewInternalError("failed to remove payment method", err)
	}

	if model.IsDefault {
		if err := s.repo.PromoteMostRecentActive(ownerID); err != nil {
			s.logger.Error("failed to promote replacement default", "error", err, "owner_id", ownerID)
			return errors.NewInternalError("failed to remove payment method", err)
		}
	}

	s.logger.Info("payment method removed", "owner_id", ownerID, "method_id", methodID, "was_default", model.IsDefault)
	return nil
}

func (s *Service) ListMethods(ownerID int64) ([]*PaymentMethod, error) {
	models, err := s.repo.GetActiveByOwnerID(ownerID)
	if err != nil {
		s.logger.Error("failed to list payment methods", "error", err, "owner_id", ownerID)
		return nil, errors.NewInternalError("failed to list payment methods", err)
	}
	return FromDataModelSlice(models), nil
}

func (s *Service) GetMethod(ownerID, methodID int64) (*PaymentMethod, error) {
	model, err := s.repo.GetByID(methodID)
	if err != nil {
		return nil, err
	}
	if model.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return FromDataModel(model), nil
}

// GetChargeableMethod is used by the ledger before a charge: the method
// must exist, be active and not be expired at charge time.
func (s *Service) GetChargeableMethod(methodID int64) (*PaymentMethod, error) {
	model, err := s.repo.GetByID(methodID)
	if err != nil {
		return nil, err
	}
	if !model.IsActive {
		return nil, ErrMethodInactive
	}
	if err := validation.ValidateExpiry(model.ExpiryMonth, model.ExpiryYear, s.now()); err != nil {
		return nil, err
	}
	return FromDataModel(model), nil
}
