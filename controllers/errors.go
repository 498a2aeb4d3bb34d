package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kendall-kelly/jersey-repair-api/flow"
	"github.com/kendall-kelly/jersey-repair-api/lifecycle"
	"github.com/kendall-kelly/jersey-repair-api/panels"
	"github.com/kendall-kelly/jersey-repair-api/store"
	"github.com/kendall-kelly/jersey-repair-api/utils"
)

// APIError is the body of a failed response
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// classifyError maps a domain error to a status and an API error. Order matters:
// the more specific sentinels wrap the more general ones.
func classifyError(err error) (int, APIError) {
	var uploadErr *utils.FileUploadError
	var validationErr *flow.ValidationError

	switch {
	case errors.Is(err, panels.ErrMutationInFlight):
		return http.StatusConflict, APIError{Code: "MUTATION_IN_FLIGHT", Message: "Another change to this order is still being saved", Retryable: true}
	case errors.Is(err, panels.ErrUnknownPanel):
		return http.StatusNotFound, APIError{Code: "PANEL_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "ORDER_NOT_FOUND", Message: "Order not found"}
	case errors.As(err, &uploadErr):
		return http.StatusBadRequest, APIError{Code: uploadErr.Code, Message: uploadErr.Message}
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: validationErr.Error()}
	case errors.Is(err, lifecycle.ErrMissingDeliveryMethod):
		return http.StatusUnprocessableEntity, APIError{Code: "MISSING_DELIVERY_METHOD", Message: err.Error()}
	case errors.Is(err, flow.ErrOrderLocked):
		return http.StatusConflict, APIError{Code: "ORDER_LOCKED", Message: "The order is paid or cancelled and can no longer be changed"}
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict, APIError{Code: "INVALID_TRANSITION", Message: err.Error()}
	case errors.Is(err, store.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, APIError{Code: "PRECONDITION_FAILED", Message: "The order was changed by someone else, reload and try again"}
	case store.IsTransient(err):
		return http.StatusServiceUnavailable, APIError{Code: "TRANSIENT_IO_ERROR", Message: "Temporary storage problem, please retry", Retryable: true}
	default:
		return http.StatusInternalServerError, APIError{Code: "INTERNAL_ERROR", Message: "Internal server error"}
	}
}

// respondError writes err in the API envelope and records it on the gin context
func respondError(c *gin.Context, err error) {
	status, apiErr := classifyError(err)
	_ = c.Error(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   apiErr,
	})
}

// respondValidation reports a malformed request body
func respondValidation(c *gin.Context, message string, err error) {
	apiErr := APIError{Code: "VALIDATION_ERROR", Message: message}
	if err != nil {
		apiErr.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   apiErr,
	})
}

func respondSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}
