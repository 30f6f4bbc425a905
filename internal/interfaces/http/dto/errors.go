package dto

import "net/http"

// Error codes returned in the error envelope
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeInternal           = "ERR_INTERNAL"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Request error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeForbidden        = "ERR_FORBIDDEN"
	ErrCodeInvalidSignature = "ERR_INVALID_SIGNATURE"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Billing error codes
const (
	// ErrCodeInvalidState is used when a subscription transition is not allowed
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeLimitExceeded is used when an action would exceed a plan limit
	ErrCodeLimitExceeded = "ERR_LIMIT_EXCEEDED"
	// ErrCodeNoActiveSubscription is used when the tenant is not entitled to any plan
	ErrCodeNoActiveSubscription = "ERR_NO_ACTIVE_SUBSCRIPTION"
	ErrCodeInvalidPlan          = "ERR_INVALID_PLAN"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInvalidState:         http.StatusUnprocessableEntity,
	ErrCodeInvalidPlan:          http.StatusUnprocessableEntity,
	ErrCodeLimitExceeded:        http.StatusPaymentRequired,
	ErrCodeNoActiveSubscription: http.StatusPaymentRequired,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodes maps shared.DomainError codes to envelope codes
var domainCodes = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"ALREADY_EXISTS":         ErrCodeAlreadyExists,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"INVALID_TENANT":         ErrCodeInvalidInput,
	"INVALID_RESOURCE_KIND":  ErrCodeInvalidInput,
	"INVALID_SLUG":           ErrCodeInvalidInput,
	"INVALID_NAME":           ErrCodeInvalidInput,
	"INVALID_STATE":          ErrCodeInvalidState,
	"INVALID_PLAN":           ErrCodeInvalidPlan,
	"FORBIDDEN":              ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":   ErrCodeConcurrencyConflict,
	"VERSION_CONFLICT":       ErrCodeConcurrencyConflict,
	"LIMIT_EXCEEDED":         ErrCodeLimitExceeded,
	"NO_ACTIVE_SUBSCRIPTION": ErrCodeNoActiveSubscription,
}

// NormalizeErrorCode converts a domain error code to its envelope code.
// Codes that are already normalized or unknown are returned as-is.
func NormalizeErrorCode(code string) string {
	if normalized, ok := domainCodes[code]; ok {
		return normalized
	}
	return code
}
