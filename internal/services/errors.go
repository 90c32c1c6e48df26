package services

import (
	"errors"
	"net/http"
)

// Business-rule failures surfaced by the services. Each maps to a stable
// machine-readable code and an HTTP status; handlers must never invent
// ad-hoc error strings for these cases.
var (
	ErrInvalidCardUID      = errors.New("card UID must be exactly 8 hexadecimal characters")
	ErrCardNotFound        = errors.New("card not found")
	ErrCompanyNotFound     = errors.New("company not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientFunds   = errors.New("card balance lower than requested amount")
	ErrForbidden           = errors.New("operation requires administrator role")
	ErrRequestNotFound     = errors.New("top-up request not found")
	ErrRequestResolved     = errors.New("top-up request already resolved")
	ErrInvalidDecision     = errors.New("decision must be accepted or denied")
	ErrCardNumberExhausted = errors.New("could not allocate a unique card number")
	ErrCardUIDTaken        = errors.New("card UID already registered")
	ErrCompanyExists       = errors.New("company with this name already registered")
)

// errBalanceConflict marks an optimistic-lock miss on a balance write.
// It never leaves the services package: callers retry and, on exhaustion,
// report an internal error.
var errBalanceConflict = errors.New("balance version conflict")

// ErrorCode returns the stable error kind for a service failure, or
// "InternalError" for anything unrecognized.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCardUID):
		return "InvalidIdentifier"
	case errors.Is(err, ErrCardNotFound):
		return "CardNotFound"
	case errors.Is(err, ErrCompanyNotFound):
		return "CompanyNotFound"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrRequestNotFound):
		return "RequestNotFound"
	case errors.Is(err, ErrRequestResolved):
		return "InvalidState"
	case errors.Is(err, ErrInvalidDecision):
		return "InvalidDecision"
	case errors.Is(err, ErrCardNumberExhausted), errors.Is(err, ErrCardUIDTaken), errors.Is(err, ErrCompanyExists):
		return "Conflict"
	default:
		return "InternalError"
	}
}

// ErrorStatus maps a service failure to its HTTP status code.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCardUID), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDecision):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrCardNotFound), errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRequestResolved), errors.Is(err, ErrCardNumberExhausted),
		errors.Is(err, ErrCardUIDTaken), errors.Is(err, ErrCompanyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
