package guardian

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/tutor-billing/internal"
	guardianDatamodel "github.com/frahmantamala/tutor-billing/internal/core/datamodel/guardian"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
)

// RepositoryAPI defines the data access methods for guardian controls.
// TryReserveSpend and ResetMonth are guarded updates: they only touch
// rows still in the expected month, so concurrent authorizations and
// rollovers cannot double-count.
type RepositoryAPI interface {
	CreateControl(control *guardianDatamodel.Control) error
	GetControlByID(id int64) (*guardianDatamodel.Control, error)
	GetControlByPaymentMethodID(methodID int64) (*guardianDatamodel.Control, error)
	GetControlsByGuardianID(guardianID int64) ([]*guardianDatamodel.Control, error)
	UpdateLimits(controlID int64, perTxn, monthly *int64) error

	UpsertLink(controlID, studentID int64) error
	DeleteLink(controlID, studentID int64) error
	IsStudentLinked(controlID, studentID int64) (bool, error)
	GetLinkedStudentIDs(controlID int64) ([]int64, error)

	// TryReserveSpend atomically adds amount to the control's month
	// spend if the control is still in monthKey and the result stays
	// within the monthly limit. Returns false when the guard fails.
	TryReserveSpend(controlID int64, monthKey string, amountCents int64) (bool, error)
	AddSpend(controlID int64, monthKey string, amountCents int64) error
	SubtractSpend(controlID int64, monthKey string, amountCents int64) error
	ResetMonth(controlID int64, fromKey, toKey string) (bool, error)
	GetAllControls() ([]*guardianDatamodel.Control, error)

	CreateReservation(reservation *guardianDatamodel.Reservation) error
	GetReservationByID(id int64) (*guardianDatamodel.Reservation, error)
	UpdateReservationStatus(id int64, fromStatus, toStatus string) (bool, error)
}

type Service struct {
	repo     RepositoryAPI
	eventBus *events.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryAPI, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// EnableControl attaches a spending policy to a payment method. One
// control per method; enabling twice is a conflict.
func (s *Service) EnableControl(guardianID int64, dto *EnableControlDTO) (*Control, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("control validation failed", "error", err, "guardian_id", guardianID)
		return nil, err
	}

	if existing, err := s.repo.GetControlByPaymentMethodID(dto.PaymentMethodID); err == nil && existing != nil {
		return nil, ErrControlExists
	}

	model := &guardianDatamodel.Control{
		PaymentMethodID:          dto.PaymentMethodID,
		GuardianID:               guardianID,
		PerTransactionLimitCents: dto.PerTransactionLimitCents,
		MonthlyLimitCents:        dto.MonthlyLimitCents,
		MonthSpendCents:          0,
		BillingTimezone:          dto.BillingTimezone,
		MonthKey:                 MonthKeyFor(s.now(), dto.BillingTimezone),
		CreatedAt:                s.now(),
		UpdatedAt:                s.now(),
	}

	if err := s.repo.CreateControl(model); err != nil {
		s.logger.Error("failed to create guardian control", "error", err, "guardian_id", guardianID)
		return nil, errors.NewInternalError("failed to enable guardian control", err)
	}

	s.logger.Info("guardian control enabled",
		"control_id", model.ID,
		"guardian_id", guardianID,
		"payment_method_id", dto.PaymentMethodID)

	return FromDataModel(model), nil
}

// SetLimits replaces both limits. Lowering a limit below this month's
// spend is allowed: existing spend stands, further charges are blocked.
func (s *Service) SetLimits(guardianID, controlID int64, dto *SetLimitsDTO) (*Control, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	control, err := s.ownedControl(guardianID, controlID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLimits(controlID, dto.PerTransactionLimitCents, dto.MonthlyLimitCents); err != nil {
		s.logger.Error("failed to update limits", "error", err, "control_id", controlID)
		return nil, errors.NewInternalError("failed to update limits", err)
	}

	control.PerTransactionLimitCents = dto.PerTransactionLimitCents
	control.MonthlyLimitCents = dto.MonthlyLimitCents

	s.logger.Info("guardian limits updated", "control_id", controlID, "guardian_id", guardianID)
	return FromDataModel(control), nil
}

// LinkStudent is idempotent: linking an already linked student is a
// no-op success.
func (s *Service) LinkStudent(guardianID, controlID, studentID int64) error {
	if _, err := s.ownedControl(guardianID, controlID); err != nil {
		return err
	}

	if err := s.repo.UpsertLink(controlID, studentID); err != nil {
		s.logger.Error("failed to link student", "error", err, "control_id", controlID, "student_id", studentID)
		return errors.NewInternalError("failed to link student", err)
	}

	s.logger.Info("student linked", "control_id", controlID, "student_id", studentID)
	return nil
}

// UnlinkStudent is idempotent the same way. Unlinking does not touch
// reservations already held for the student.
func (s *Service) UnlinkStudent(guardianID, controlID, studentID int64) error {
	if _, err := s.ownedControl(guardianID, controlID); err != nil {
		return err
	}

	if err := s.repo.DeleteLink(controlID, studentID); err != nil {
		s.logger.Error("failed to unlink student", "error", err, "control_id", controlID, "student_id", studentID)
		return errors.NewInternalError("failed to unlink student", err)
	}

	s.logger.Info("student unlinked", "control_id", controlID, "student_id", studentID)
	return nil
}

func (s *Service) GetControl(guardianID, controlID int64) (*Control, error) {
	control, err := s.ownedControl(guardianID, controlID)
	if err != nil {
		return nil, err
	}

	result := FromDataModel(control)
	if linked, err := s.repo.GetLinkedStudentIDs(controlID); err == nil {
		result.LinkedStudentIDs = linked
	}
	return result, nil
}

func (s *Service) ListControls(guardianID int64) ([]*Control, error) {
	models, err := s.repo.GetControlsByGuardianID(guardianID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list controls", err)
	}
	result := make([]*Control, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m)
	}
	return result, nil
}

// AuthorizeCharge checks a pending charge against the method's control
// and opens a hold against the monthly budget. A method without a
// control authorizes trivially. The denial order is fixed: link check,
// per-transaction limit, monthly limit.
func (s *Service) AuthorizeCharge(ctx context.Context, paymentMethodID int64, studentID *int64, amountCents int64) (*Authorization, error) {
	control, err := s.repo.GetControlByPaymentMethodID(paymentMethodID)
	if err != nil {
		if err == ErrControlNotFound {
			return &Authorization{}, nil
		}
		return nil, errors.NewInternalError("failed to check guardian control", err)
	}

	if studentID == nil {
		return nil, ErrStudentNotLinked
	}

	linked, err := s.repo.IsStudentLinked(control.ID, *studentID)
	if err != nil {
		return nil, errors.NewInternalError("failed to check student link", err)
	}
	if !linked {
		s.logger.Warn("charge denied: student not linked",
			"control_id", control.ID, "student_id", *studentID)
		return nil, ErrStudentNotLinked
	}

	if control.PerTransactionLimitCents != nil && amountCents > *control.PerTransactionLimitCents {
		s.logger.Warn("charge denied: per-transaction limit",
			"control_id", control.ID,
			"amount_cents", amountCents,
			"limit_cents", *control.PerTransactionLimitCents)
		return nil, NewPerTxnLimitError(*control.PerTransactionLimitCents, amountCents)
	}

	monthKey := MonthKeyFor(s.now(), control.BillingTimezone)
	if control.MonthKey != monthKey {
		// Lazy rollover: the sweep usually does this, but a charge
		// arriving first must not count against the previous month.
		if _, err := s.repo.ResetMonth(control.ID, control.MonthKey, monthKey); err != nil {
			return nil, errors.NewInternalError("failed to roll billing month", err)
		}
		control.MonthSpendCents = 0
		control.MonthKey = monthKey
	}

	if control.MonthlyLimitCents != nil {
		ok, err := s.repo.TryReserveSpend(control.ID, monthKey, amountCents)
		if err != nil {
			return nil, errors.NewInternalError("failed to reserve spend", err)
		}
		if !ok {
			s.logger.Warn("charge denied: monthly limit",
				"control_id", control.ID,
				"amount_cents", amountCents,
				"limit_cents", *control.MonthlyLimitCents)
			s.publishLimitReached(ctx, control, *studentID, true)
			return nil, NewMonthlyLimitError(*control.MonthlyLimitCents)
		}

		if control.MonthSpendCents+amountCents >= *control.MonthlyLimitCents {
			s.publishLimitReached(ctx, control, *studentID, false)
		}
	} else {
		if err := s.repo.AddSpend(control.ID, monthKey, amountCents); err != nil {
			return nil, errors.NewInternalError("failed to record spend", err)
		}
	}

	reservation := &guardianDatamodel.Reservation{
		ControlID:   control.ID,
		StudentID:   *studentID,
		AmountCents: amountCents,
		MonthKey:    monthKey,
		Status:      guardianDatamodel.ReservationHeld,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if err := s.repo.CreateReservation(reservation); err != nil {
		// The hold is already counted; give it back before failing.
		if rbErr := s.repo.SubtractSpend(control.ID, monthKey, amountCents); rbErr != nil {
			s.logger.Error("failed to roll back spend after reservation error",
				"error", rbErr, "control_id", control.ID)
		}
		return nil, errors.NewInternalError("failed to create reservation", err)
	}

	s.logger.Info("charge authorized",
		"control_id", control.ID,
		"reservation_id", reservation.ID,
		"student_id", *studentID,
		"amount_cents", amountCents)

	controlID := control.ID
	reservationID := reservation.ID
	return &Authorization{ControlID: &controlID, ReservationID: &reservationID}, nil
}

// CommitReservation finalizes a hold after the charge settles. If the
// billing month rolled while the hold was open, the spend moves into
// the new month; the reserve-time count was reset away with the old
// month.
func (s *Service) CommitReservation(reservationID int64) error {
	reservation, err := s.repo.GetReservationByID(reservationID)
	if err != nil {
		return err
	}

	updated, err := s.repo.UpdateReservationStatus(reservationID,
		guardianDatamodel.ReservationHeld, guardianDatamodel.ReservationCommitted)
	if err != nil {
		return errors.NewInternalError("failed to commit reservation", err)
	}
	if !updated {
		// Already resolved; settlement retries land here.
		return nil
	}

	control, err := s.repo.GetControlByID(reservation.ControlID)
	if err != nil {
		return err
	}

	if control.MonthKey != reservation.MonthKey {
		if err := s.repo.AddSpend(control.ID, control.MonthKey, reservation.AmountCents); err != nil {
			return errors.NewInternalError("failed to carry spend into new month", err)
		}
	}

	s.logger.Info("reservation committed", "reservation_id", reservationID, "control_id", control.ID)
	return nil
}

// ReleaseReservation gives a hold back after a failed charge. After a
// month rollover there is nothing to give back.
func (s *Service) ReleaseReservation(reservationID int64) error {
	reservation, err := s.repo.GetReservationByID(reservationID)
	if err != nil {
		return err
	}

	updated, err := s.repo.UpdateReservationStatus(reservationID,
		guardianDatamodel.ReservationHeld, guardianDatamodel.ReservationReleased)
	if err != nil {
		return errors.NewInternalError("failed to release reservation", err)
	}
	if !updated {
		return nil
	}

	if err := s.repo.SubtractSpend(reservation.ControlID, reservation.MonthKey, reservation.AmountCents); err != nil {
		return errors.NewInternalError("failed to return reserved spend", err)
	}

	s.logger.Info("reservation released", "reservation_id", reservationID, "control_id", reservation.ControlID)
	return nil
}

// RolloverDueControls resets month spend for every control whose
// billing month has changed in its own timezone. Run from the worker
// schedule; the lazy check in AuthorizeCharge covers the gap between
// runs.
func (s *Service) RolloverDueControls() (int, error) {
	controls, err := s.repo.GetAllControls()
	if err != nil {
		return 0, errors.NewInternalError("failed to load controls for rollover", err)
	}

	rolled := 0
	now := s.now()
	for _, control := range controls {
		currentKey := MonthKeyFor(now, control.BillingTimezone)
		if control.MonthKey == currentKey {
			continue
		}
		ok, err := s.repo.ResetMonth(control.ID, control.MonthKey, currentKey)
		if err != nil {
			s.logger.Error("rollover failed for control", "error", err, "control_id", control.ID)
			continue
		}
		if ok {
			rolled++
		}
	}

	if rolled > 0 {
		s.logger.Info("billing month rollover complete", "controls_rolled", rolled)
	}
	return rolled, nil
}

// GuardianForReservation resolves the guardian behind a hold, used to
// address settlement notifications.
func (s *Service) GuardianForReservation(reservationID int64) (int64, error) {
	reservation, err := s.repo.GetReservationByID(reservationID)
	if err != nil {
		return 0, err
	}
	control, err := s.repo.GetControlByID(reservation.ControlID)
	if err != nil {
		return 0, err
	}
	return control.GuardianID, nil
}

func (s *Service) ownedControl(guardianID, controlID int64) (*guardianDatamodel.Control, error) {
	control, err := s.repo.GetControlByID(controlID)
	if err != nil {
		return nil, err
	}
	if control.GuardianID != guardianID {
		return nil, ErrNotControlOwner
	}
	return control, nil
}

func (s *Service) publishLimitReached(ctx context.Context, control *guardianDatamodel.Control, studentID int64, declined bool) {
	if s.eventBus == nil || control.MonthlyLimitCents == nil {
		return
	}
	event := events.NewLimitReachedEvent(
		control.GuardianID,
		studentID,
		control.PaymentMethodID,
		*control.MonthlyLimitCents,
		control.MonthSpendCents,
		declined,
	)
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish limit reached event", "error", err)
	}
}
