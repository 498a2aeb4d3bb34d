package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/flow"
	"github.com/kendall-kelly/jersey-repair-api/middleware"
	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/kendall-kelly/jersey-repair-api/services"
	"github.com/kendall-kelly/jersey-repair-api/store"
)

// OrderStore is the part of the store the admin order endpoints use
type OrderStore interface {
	Get(ctx context.Context, id string) (models.Order, error)
	Update(ctx context.Context, id string, patch store.Patch) (models.Order, error)
}

// AdminOrderController serves direct order edits that are not lifecycle transitions
type AdminOrderController struct {
	orders OrderStore
	images services.ImageService
	logger *zap.Logger
}

// NewAdminOrderController creates an AdminOrderController
func NewAdminOrderController(orders OrderStore, images services.ImageService, logger *zap.Logger) *AdminOrderController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminOrderController{orders: orders, images: images, logger: logger}
}

// UpdateOrderRequest is an admin override of quote and contact details.
// ExpectedUpdatedAt turns the edit into a conditional write.
type UpdateOrderRequest struct {
	ContactInfo       *models.ContactInfo `json:"contactInfo"`
	RepairType        *string             `json:"repairType"`
	RepairDescription *string             `json:"repairDescription"`
	Price             *decimal.Decimal    `json:"price"`
	Notes             *string             `json:"notes"`
	ExpectedUpdatedAt *time.Time          `json:"expectedUpdatedAt"`
}

// Photo is a stored photo and a URL to view it
type Photo struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// GetOrder handles GET /api/v1/admin/orders/:id
func (ac *AdminOrderController) GetOrder(c *gin.Context) {
	order, err := ac.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, order)
}

// UpdateOrder handles PATCH /api/v1/admin/orders/:id
func (ac *AdminOrderController) UpdateOrder(c *gin.Context) {
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "Invalid request data", err)
		return
	}
	if req.Price != nil && req.Price.IsNegative() {
		respondValidation(c, "Price must not be negative", nil)
		return
	}

	if req.ContactInfo != nil {
		contact, err := flow.ValidContact(*req.ContactInfo)
		if err != nil {
			respondError(c, err)
			return
		}
		req.ContactInfo = &contact
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	patch := store.Patch{
		ContactInfo:       req.ContactInfo,
		RepairType:        req.RepairType,
		RepairDescription: req.RepairDescription,
		Notes:             req.Notes,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	}
	if patch.IsEmpty() && req.Price == nil {
		respondValidation(c, "Nothing to update", nil)
		return
	}
	if actor, err := middleware.GetUserID(c); err == nil {
		patch.UpdatedBy = actor
	}

	var (
		order models.Order
		err   error
	)
	if req.Price == nil {
		order, err = ac.orders.Update(ctx, id, patch)
	} else {
		order, err = ac.updatePrice(ctx, id, req.Price.Round(2), patch)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	ac.logger.Info("order edited by admin", zap.String("order_id", id), zap.String("actor", patch.UpdatedBy))
	respondSuccess(c, http.StatusOK, order)
}

// updatePrice sets the price and, while the order is unpaid, the amount due with it.
// The write is conditional on the order read, so a payment confirmed in between keeps
// its amount; without a caller precondition the edit is retried on the fresh order.
func (ac *AdminOrderController) updatePrice(ctx context.Context, id string, price decimal.Decimal, patch store.Patch) (models.Order, error) {
	patch.Price = &price
	callerPrecondition := patch.ExpectedUpdatedAt != nil

	const attempts = 3
	for i := 0; ; i++ {
		current, err := ac.orders.Get(ctx, id)
		if err != nil {
			return models.Order{}, err
		}
		patch.Payment = nil
		if current.Payment.Status == models.PaymentUnpaid {
			patch.Payment = &store.PaymentPatch{Amount: &price}
		}
		if !callerPrecondition {
			patch.ExpectedUpdatedAt = &current.UpdatedAt
		}

		order, err := ac.orders.Update(ctx, id, patch)
		if errors.Is(err, store.ErrPreconditionFailed) && !callerPrecondition && i < attempts-1 {
			continue
		}
		return order, err
	}
}

// GetPhotos handles GET /api/v1/admin/orders/:id/photos
func (ac *AdminOrderController) GetPhotos(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := ac.orders.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	photos := make([]Photo, 0, len(order.Photos))
	for _, key := range order.Photos {
		url, err := ac.images.GetImageURL(ctx, key)
		if err != nil {
			ac.logger.Warn("failed to build photo url", zap.String("order_id", order.ID), zap.String("key", key), zap.Error(err))
			continue
		}
		photos = append(photos, Photo{Key: key, URL: url})
	}
	respondSuccess(c, http.StatusOK, photos)
}
