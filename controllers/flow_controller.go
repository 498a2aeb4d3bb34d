package controllers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/flow"
	"github.com/kendall-kelly/jersey-repair-api/middleware"
	"github.com/kendall-kelly/jersey-repair-api/services"
)

// SessionHeader carries the customer flow session id
const SessionHeader = "X-Session-ID"

// FlowController serves the customer order flow
type FlowController struct {
	flow   *flow.Flow
	images services.ImageService
	logger *zap.Logger
}

// NewFlowController creates a FlowController
func NewFlowController(f *flow.Flow, images services.ImageService, logger *zap.Logger) *FlowController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowController{flow: f, images: images, logger: logger}
}

func (fc *FlowController) session(c *gin.Context) (flow.Session, bool) {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		respondValidation(c, "The "+SessionHeader+" header is required", nil)
		return flow.Session{}, false
	}
	userID, _ := middleware.GetUserID(c)
	return flow.Session{
		ID:          id,
		OwnerID:     userID,
		AccessToken: middleware.GetAccessToken(c),
	}, true
}

// Start handles POST /api/v1/flow - finds or creates the session's order
func (fc *FlowController) Start(c *gin.Context) {
	sess, ok := fc.session(c)
	if !ok {
		return
	}

	order, created, err := fc.flow.Start(c.Request.Context(), sess)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondSuccess(c, status, order)
}

// Resume handles GET /api/v1/flow - returns the order and the next step
func (fc *FlowController) Resume(c *gin.Context) {
	sess, ok := fc.session(c)
	if !ok {
		return
	}

	progress, err := fc.flow.Resume(c.Request.Context(), sess)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, progress)
}

// Catalog handles GET /api/v1/flow/catalog - the repair price list
func (fc *FlowController) Catalog(c *gin.Context) {
	respondSuccess(c, http.StatusOK, fc.flow.Catalog())
}

// UploadPhotos handles POST /api/v1/flow/photos - multipart field "photos", one or more files
func (fc *FlowController) UploadPhotos(c *gin.Context) {
	sess, ok := fc.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	form, err := c.MultipartForm()
	if err != nil {
		respondValidation(c, "Expected a multipart form with one or more photos", err)
		return
	}
	files := form.File["photos"]
	if len(files) == 0 {
		respondValidation(c, "At least one file in the \"photos\" field is required", nil)
		return
	}
	if len(files) > flow.MaxPhotos {
		respondValidation(c, "Too many photos in one upload", nil)
		return
	}

	progress, err := fc.flow.Resume(ctx, sess)
	if err != nil {
		respondError(c, err)
		return
	}
	if progress.Locked {
		respondError(c, flow.ErrOrderLocked)
		return
	}

	keys, err := fc.upload(c, sess, files)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := fc.flow.AddPhotos(ctx, sess, keys)
	if err != nil {
		fc.discard(c, keys)
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, order)
}

// upload stores every file or none of them
func (fc *FlowController) upload(c *gin.Context, sess flow.Session, files []*multipart.FileHeader) ([]string, error) {
	prefix := "jerseys/" + sess.ID
	keys := make([]string, 0, len(files))
	for _, fh := range files {
		key, err := fc.images.UploadImage(c.Request.Context(), prefix, fh)
		if err != nil {
			fc.discard(c, keys)
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (fc *FlowController) discard(c *gin.Context, keys []string) {
	for _, key := range keys {
		if err := fc.images.DeleteImage(c.Request.Context(), key); err != nil {
			fc.logger.Warn("failed to delete orphaned photo", zap.String("key", key), zap.Error(err))
		}
	}
}

// Quote handles PUT /api/v1/flow/quote
func (fc *FlowController) Quote(c *gin.Context) {
	sess, ok := fc.session(c)
	if !ok {
		return
	}

	var req flow.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "Invalid request data", err)
		return
	}

	order, err := fc.flow.SelectRepair(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, order)
}

// Schedule handles PUT /api/v1/flow/schedule
func (fc *FlowController) Schedule(c *gin.Context) {
	sess, ok := fc.session(c)
	if !ok {
		return
	}

	var req flow.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "Invalid request data", err)
		return
	}

	order, err := fc.flow.Schedule(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, order)
}

// Cancel handles DELETE /api/v1/flow - abandons an unpaid order
func (fc *FlowController) Cancel(c *gin.Context) {
	sess, ok := fc.session(c)
	if !ok {
		return
	}

	if err := fc.flow.Cancel(c.Request.Context(), sess); err != nil {
		if errors.Is(err, flow.ErrOrderLocked) {
			fc.logger.Info("customer tried to cancel a paid order", zap.String("session_id", sess.ID))
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order cancelled",
	})
}
