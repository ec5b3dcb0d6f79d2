package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type policyDetails struct {
	Reason    domain.PolicyReason `json:"reason"`
	Requested int64               `json:"requested"`
	Limit     int64               `json:"limit"`
	Available int64               `json:"available"`
}

type page struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Offset int `json:"offset"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var violation *domain.PolicyViolation
	if errors.As(err, &violation) {
		RespondAppError(w, ErrWithdrawalPolicy, policyDetails{
			Reason:    violation.Reason,
			Requested: violation.Requested,
			Limit:     violation.Limit,
			Available: violation.Available,
		})
		return
	}

	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		appErr = ErrAccountNotFound
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		appErr = ErrInsufficientCredits
	case errors.Is(err, domain.ErrIntegrityViolation):
		appErr = ErrIntegrityViolation
	case errors.Is(err, domain.ErrConcurrentModification):
		appErr = ErrConcurrentModification
	case errors.Is(err, domain.ErrAccountExists):
		appErr = ErrAccountExists
	case errors.Is(err, domain.ErrAccountDisabled):
		appErr = ErrAccountDisabled
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidCategory):
		appErr = ErrInvalidCategory
	case errors.Is(err, domain.ErrInvalidTransactionType):
		appErr = ErrInvalidTransactionType
	case errors.Is(err, domain.ErrUnknownFeature):
		appErr = ErrUnknownFeature
	case errors.Is(err, domain.ErrRefundExceedsOriginal):
		appErr = ErrRefundExceedsOriginal
	case errors.Is(err, domain.ErrAlreadyRefunded):
		appErr = ErrAlreadyRefunded
	case errors.Is(err, domain.ErrNotRefundable):
		appErr = ErrNotRefundable
	case errors.Is(err, domain.ErrInvalidStateTransition):
		appErr = ErrInvalidTransition
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
