package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger (LED) ----

func ErrInsufficientBalance(bucket string) *AppError {
	return New("LED_001", fmt.Sprintf("Insufficient balance in %s bucket", bucket), http.StatusPaymentRequired)
}

func ErrConcurrencyConflict(err error) *AppError {
	return Wrap("LED_002", "Concurrent balance mutation conflict", http.StatusConflict, err)
}

func ErrCurrencyMismatch(err error) *AppError {
	return Wrap("LED_003", "Currency mismatch in ledger operation", http.StatusBadRequest, err)
}

// ---- Payment (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_001", "Amount must be positive", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("PAY_003", fmt.Sprintf("Illegal payment transition %s -> %s", from, to), http.StatusConflict)
}

func ErrDuplicateIntent() *AppError {
	return New("PAY_004", "Payment intent already exists", http.StatusConflict)
}

func ErrPaymentExpired() *AppError {
	return New("PAY_005", "Payment has expired", http.StatusGone)
}

func ErrTransactionLimitExceeded() *AppError {
	return New("PAY_006", "Transaction limit exceeded", http.StatusUnprocessableEntity)
}

func ErrCurrencyNotAllowed(currency string) *AppError {
	return New("PAY_007", fmt.Sprintf("Currency %s not allowed for merchant", currency), http.StatusUnprocessableEntity)
}

// ---- Allocation (ALC) ----

func ErrAllocationInsufficient() *AppError {
	return New("ALC_001", "Available wallet funds do not cover the payment amount", http.StatusPaymentRequired)
}

func ErrNoEligibleWallets() *AppError {
	return New("ALC_002", "No wallets eligible for allocation", http.StatusUnprocessableEntity)
}

// ---- Refund (REF) ----

func ErrRefundExceedsPayment() *AppError {
	return New("REF_001", "Refund amount exceeds refundable remainder", http.StatusBadRequest)
}

func ErrNotRefundable() *AppError {
	return New("REF_002", "Payment not eligible for refund", http.StatusBadRequest)
}

// ---- Payout (PYT) ----

func ErrBelowPayoutThreshold() *AppError {
	return New("PYT_001", "Available balance below payout threshold", http.StatusUnprocessableEntity)
}

// ---- Rails (RAIL) ----

func ErrRailFailure(err error) *AppError {
	return Wrap("RAIL_001", "External rail rejected the operation", http.StatusBadGateway, err)
}

// ---- System & Infrastructure (SYS) ----

func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_002", "Internal database error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_001-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("PAY_001", message, http.StatusBadRequest)
}
