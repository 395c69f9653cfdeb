package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeLimitExceeded ErrorType = "LIMIT_EXCEEDED"
	ErrorTypeInvalidState  ErrorType = "INVALID_STATE_TRANSITION"
	ErrorTypeProcessor     ErrorType = "PROCESSOR_ERROR"
	ErrorTypeForbidden     ErrorType = "FORBIDDEN"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidCard      ErrorCode = "INVALID_CARD_NUMBER"
	ErrCodeCardExpired      ErrorCode = "CARD_EXPIRED"
	ErrCodeInvalidReason    ErrorCode = "INVALID_REASON"

	ErrCodeMethodNotFound       ErrorCode = "PAYMENT_METHOD_NOT_FOUND"
	ErrCodeTransactionNotFound  ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeSubscriptionNotFound ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	ErrCodePlanNotFound         ErrorCode = "PLAN_NOT_FOUND"
	ErrCodeRefundNotFound       ErrorCode = "REFUND_NOT_FOUND"
	ErrCodeControlNotFound      ErrorCode = "GUARDIAN_CONTROL_NOT_FOUND"
	ErrCodeNotifNotFound        ErrorCode = "NOTIFICATION_NOT_FOUND"

	ErrCodeStudentNotLinked   ErrorCode = "STUDENT_NOT_LINKED"
	ErrCodePerTxnLimit        ErrorCode = "PER_TRANSACTION_LIMIT_EXCEEDED"
	ErrCodeMonthlyLimit       ErrorCode = "MONTHLY_LIMIT_EXCEEDED"
	ErrCodeRefundExceedsTotal ErrorCode = "REFUND_EXCEEDS_REMAINING"

	ErrCodeIllegalTransition   ErrorCode = "ILLEGAL_STATE_TRANSITION"
	ErrCodeAlreadySettled      ErrorCode = "TRANSACTION_ALREADY_SETTLED"
	ErrCodeSubscriptionExpired ErrorCode = "SUBSCRIPTION_EXPIRED"
	ErrCodeRenewalNotDue       ErrorCode = "RENEWAL_NOT_DUE"
	ErrCodeNoSessionCredits    ErrorCode = "NO_SESSION_CREDITS"
	ErrCodeDuplicateRefund     ErrorCode = "DUPLICATE_REFUND_REQUEST"
	ErrCodeNotRequester        ErrorCode = "NOT_REFUND_REQUESTER"
	ErrCodeNotOwner            ErrorCode = "NOT_RESOURCE_OWNER"

	ErrCodeProcessorDeclined ErrorCode = "PROCESSOR_DECLINED"
	ErrCodeProcessorTimeout  ErrorCode = "PROCESSOR_TIMEOUT"
	ErrCodeProcessorFatal    ErrorCode = "PROCESSOR_FATAL"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
	Retryable  bool        `json:"retryable,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {

			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewLimitExceededError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeLimitExceeded,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewInvalidStateError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidState,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewProcessorError wraps a failure from the external billing processor.
// Retryable failures may be re-attempted with the same idempotency key.
func NewProcessorError(message string, code ErrorCode, retryable bool) *AppError {
	status := http.StatusUnprocessableEntity
	if retryable {
		status = http.StatusBadGateway
	}
	return &AppError{
		Type:       ErrorTypeProcessor,
		Code:       code,
		Message:    message,
		StatusCode: status,
		Retryable:  retryable,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      ErrorType   `json:"type"`
		Code      ErrorCode   `json:"code"`
		Message   string      `json:"message"`
		Details   interface{} `json:"details,omitempty"`
		Retryable bool        `json:"retryable,omitempty"`
	}{
		Type:      e.Type,
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
	})
}
