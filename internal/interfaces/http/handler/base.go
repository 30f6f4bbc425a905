package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendsaas/backend/internal/domain/billing"
	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/interfaces/http/dto"
	"github.com/lendsaas/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID returns the request ID assigned by the logging middleware,
// falling back to the inbound header
func getRequestID(c *gin.Context) string {
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader(logger.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// BindFailed answers a request whose body or query could not be bound:
// 413 when the body ran past the size cap, 400 otherwise.
func (h *BaseHandler) BindFailed(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge, "Request body exceeds maximum allowed size")
		return
	}
	h.BadRequest(c, err.Error())
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// requireTenant returns the tenant resolved by the tenant middleware and
// writes a 401 when there is none
func (h *BaseHandler) requireTenant(c *gin.Context) (uuid.UUID, bool) {
	id := middleware.GetTenantUUID(c)
	if id == uuid.Nil {
		h.Unauthorized(c, "Tenant identification required")
		return uuid.Nil, false
	}
	return id, true
}

// HandleError converts service errors to HTTP responses. Limit errors carry
// the kind, usage and ceiling so clients can render an upgrade prompt.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := getRequestID(c)

	var limitErr *billing.LimitExceededError
	if errors.As(err, &limitErr) {
		c.JSON(limitErr.HTTPStatusCode(), dto.NewErrorResponseWithRequestID(
			dto.NormalizeErrorCode(limitErr.Code()),
			limitErr.Error(),
			requestID,
		).WithDetails(map[string]any{
			"kind":    limitErr.Kind,
			"current": limitErr.Current,
			"limit":   limitErr.Limit,
		}))
		return
	}

	if errors.Is(err, billing.ErrUsageStoreUnavailable) {
		logger.FromContext(c.Request.Context()).Warn("Usage store unavailable", zap.Error(err))
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, "Usage data is temporarily unavailable")
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	logger.FromContext(c.Request.Context()).Error("Unhandled request error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
