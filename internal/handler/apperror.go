package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidServiceAuth = &AppError{http.StatusUnauthorized, "INVALID_SERVICE_TOKEN", "Service token is missing or invalid"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientCredits    = &AppError{http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", "Not enough credits for this operation"}
	ErrIntegrityViolation     = &AppError{http.StatusInternalServerError, "INTEGRITY_VIOLATION", "Ledger integrity check failed; the operation was not applied"}
	ErrConcurrentModification = &AppError{http.StatusConflict, "CONCURRENT_MODIFICATION", "Account is busy, please retry"}
	ErrAccountNotFound        = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Credit account not found"}
	ErrAccountExists          = &AppError{http.StatusConflict, "ACCOUNT_ALREADY_EXISTS", "Credit account already exists"}
	ErrAccountDisabled        = &AppError{http.StatusForbidden, "ACCOUNT_DISABLED", "Credit account is disabled"}
	ErrInvalidAmount          = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a positive number of credits"}
	ErrInvalidCategory        = &AppError{http.StatusBadRequest, "INVALID_CATEGORY", "Category must be PROMO, SUB, PAID or BONUS"}
	ErrInvalidTransactionType = &AppError{http.StatusBadRequest, "INVALID_TRANSACTION_TYPE", "Transaction type not allowed here"}
	ErrUnknownFeature         = &AppError{http.StatusBadRequest, "UNKNOWN_FEATURE", "Unknown feature code"}
	ErrRefundExceedsOriginal  = &AppError{http.StatusUnprocessableEntity, "REFUND_EXCEEDS_ORIGINAL", "Refund exceeds the remaining refundable amount"}
	ErrAlreadyRefunded        = &AppError{http.StatusConflict, "ALREADY_REFUNDED", "Transaction already fully refunded"}
	ErrNotRefundable          = &AppError{http.StatusUnprocessableEntity, "NOT_REFUNDABLE", "Transaction is not a refundable consumption"}
	ErrInvalidTransition      = &AppError{http.StatusConflict, "INVALID_STATE_TRANSITION", "Withdrawal is not in a state that allows this action"}
	ErrWithdrawalPolicy       = &AppError{http.StatusUnprocessableEntity, "WITHDRAWAL_POLICY_VIOLATION", "Withdrawal request violates policy"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrRequestInProgress     = &AppError{http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is still being processed"}
)
