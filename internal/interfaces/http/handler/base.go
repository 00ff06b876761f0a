package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/interfaces/http/dto"
	"github.com/serialtrack/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getUserID extracts the acting user from the request. Authentication is
// handled upstream by the API gateway; the verified subject arrives as a
// header.
func getUserID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// Success sends a 200 success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// List sends a 200 response with pagination meta
func (h *BaseHandler) List(c *gin.Context, data any, count, pageSize int, nextToken string) {
	c.JSON(http.StatusOK, dto.NewListResponse(data, count, pageSize, nextToken))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeBadRequest, message, middleware.GetRequestID(c),
	))
}

// HandleBindingError sends a 400 response for a request binding failure,
// with per-field details when the validator produced them.
func (h *BaseHandler) HandleBindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(err, middleware.GetRequestID(c)))
}

// HandleError converts an error into an HTTP response. Domain errors map to
// their status codes; anything else is an internal error with the detail kept
// out of the response body.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := middleware.GetRequestID(c)

	if domainErr, ok := shared.AsDomainError(err); ok {
		c.JSON(dto.GetHTTPStatus(domainErr.Code), dto.NewErrorResponseWithRequestID(
			domainErr.Code, domainErr.Message, requestID,
		))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal, "An unexpected error occurred", requestID,
	))
}
