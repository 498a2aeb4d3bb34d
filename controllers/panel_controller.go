package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/lifecycle"
	"github.com/kendall-kelly/jersey-repair-api/middleware"
	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/kendall-kelly/jersey-repair-api/panels"
)

// PanelController serves the admin panels
type PanelController struct {
	registry *panels.Registry
	logger   *zap.Logger
}

// NewPanelController creates a PanelController
func NewPanelController(registry *panels.Registry, logger *zap.Logger) *PanelController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PanelController{registry: registry, logger: logger}
}

// PanelSummary describes one panel
type PanelSummary struct {
	Name    panels.Name            `json:"name"`
	Title   string                 `json:"title"`
	Actions []lifecycle.ActionKind `json:"actions"`
}

// OrderDetail is an order as seen from one panel
type OrderDetail struct {
	Order    models.Order           `json:"order"`
	Actions  []lifecycle.ActionKind `json:"actions"` // offered by the panel and currently valid
	CanClose bool                   `json:"canClose"`
}

// ListPanels handles GET /api/v1/admin/panels
func (pc *PanelController) ListPanels(c *gin.Context) {
	var out []PanelSummary
	for _, p := range pc.registry.Panels() {
		out = append(out, PanelSummary{Name: p.Name(), Title: p.Title(), Actions: p.Actions()})
	}
	respondSuccess(c, http.StatusOK, out)
}

func (pc *PanelController) panel(c *gin.Context) (*panels.Panel, bool) {
	p, err := pc.registry.Panel(c.Param("panel"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return p, true
}

// ListOrders handles GET /api/v1/admin/panels/:panel/orders. ?refresh=true reloads the cache.
func (pc *PanelController) ListOrders(c *gin.Context) {
	p, ok := pc.panel(c)
	if !ok {
		return
	}

	var (
		orders []models.Order
		err    error
	)
	if c.Query("refresh") == "true" {
		orders, err = p.Refresh(c.Request.Context())
	} else {
		orders, err = p.List(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"count":   len(orders),
	})
}

// GetOrder handles GET /api/v1/admin/panels/:panel/orders/:id
func (pc *PanelController) GetOrder(c *gin.Context) {
	p, ok := pc.panel(c)
	if !ok {
		return
	}
	id := c.Param("id")

	order, err := p.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, detail(p, order))
}

// ApplyAction handles POST /api/v1/admin/panels/:panel/orders/:id/actions
func (pc *PanelController) ApplyAction(c *gin.Context) {
	p, ok := pc.panel(c)
	if !ok {
		return
	}

	var action lifecycle.Action
	if err := c.ShouldBindJSON(&action); err != nil {
		respondValidation(c, "Invalid request data", err)
		return
	}
	if !action.Kind.Valid() {
		respondValidation(c, "Unknown action "+string(action.Kind), nil)
		return
	}
	actor, err := middleware.GetUserID(c)
	if err != nil {
		actor = "admin"
	}
	action.Actor = actor

	order, err := p.Apply(c.Request.Context(), c.Param("id"), action)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, detail(p, order))
}

func detail(p *panels.Panel, order models.Order) OrderDetail {
	var actions []lifecycle.ActionKind
	for _, kind := range lifecycle.Available(order) {
		if p.Offers(kind) {
			actions = append(actions, kind)
		}
	}
	if actions == nil {
		actions = []lifecycle.ActionKind{}
	}
	return OrderDetail{Order: order, Actions: actions, CanClose: p.CanClose(order.ID)}
}
