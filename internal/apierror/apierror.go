package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrInvalidAccount      ErrorCode = "INVALID_ACCOUNT"
	ErrInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrSelfTransfer        ErrorCode = "SELF_TRANSFER"
	ErrAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrPartialFailure      ErrorCode = "PARTIAL_FAILURE"
	ErrStorageUnavailable  ErrorCode = "STORAGE_UNAVAILABLE"
	ErrInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrInternalServer      ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// MapErrorCodeToHTTPStatus maps a business error code to the HTTP status the
// API layer renders it with.
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrInvalidAmount, ErrInvalidAccount, ErrSelfTransfer, ErrInvalidInput:
		return http.StatusBadRequest
	case ErrAccountNotFound:
		return http.StatusNotFound
	case ErrInsufficientBalance:
		return http.StatusUnprocessableEntity
	case ErrPartialFailure:
		return http.StatusBadGateway
	case ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		return MapErrorCodeToHTTPStatus(apiErr.Code)
	}
	return http.StatusInternalServerError
}
