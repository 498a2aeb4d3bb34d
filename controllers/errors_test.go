package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kendall-kelly/jersey-repair-api/flow"
	"github.com/kendall-kelly/jersey-repair-api/lifecycle"
	"github.com/kendall-kelly/jersey-repair-api/panels"
	"github.com/kendall-kelly/jersey-repair-api/store"
	"github.com/kendall-kelly/jersey-repair-api/utils"
)

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"mutation in flight", panels.ErrMutationInFlight, http.StatusConflict, "MUTATION_IN_FLIGHT", true},
		{"unknown panel", fmt.Errorf("%w: laundry", panels.ErrUnknownPanel), http.StatusNotFound, "PANEL_NOT_FOUND", false},
		{"order not found", fmt.Errorf("get o1: %w", store.ErrNotFound), http.StatusNotFound, "ORDER_NOT_FOUND", false},
		{"upload", &utils.FileUploadError{Code: "FILE_TOO_LARGE", Message: "too big"}, http.StatusBadRequest, "FILE_TOO_LARGE", false},
		{"validation", &flow.ValidationError{Field: "repairType", Message: "unknown"}, http.StatusBadRequest, "VALIDATION_ERROR", false},
		{"missing delivery method", &lifecycle.TransitionError{Action: lifecycle.ActionRoute, Err: lifecycle.ErrMissingDeliveryMethod}, http.StatusUnprocessableEntity, "MISSING_DELIVERY_METHOD", false},
		{"order locked", fmt.Errorf("order o1: %w", flow.ErrOrderLocked), http.StatusConflict, "ORDER_LOCKED", false},
		{"not paid", lifecycle.ErrNotPaid, http.StatusConflict, "INVALID_TRANSITION", false},
		{"action not offered", panels.ErrActionNotOffered, http.StatusConflict, "INVALID_TRANSITION", false},
		{"payment conflict", flow.ErrPaymentConflict, http.StatusConflict, "INVALID_TRANSITION", false},
		{"precondition", store.ErrPreconditionFailed, http.StatusPreconditionFailed, "PRECONDITION_FAILED", false},
		{"transient", fmt.Errorf("update: %w: connection reset", store.ErrTransientIO), http.StatusServiceUnavailable, "TRANSIENT_IO_ERROR", true},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, apiErr := classifyError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, tc.retryable, apiErr.Retryable)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestRespondError_TransientSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, fmt.Errorf("query: %w", store.ErrTransientIO))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Len(t, c.Errors, 1)
}
