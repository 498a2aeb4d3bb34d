package controllers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/middleware"
)

// Router bundles the handlers and middleware the HTTP API is built from
type Router struct {
	Health     *HealthController
	Flow       *FlowController
	Panels     *PanelController
	Orders     *AdminOrderController
	Payments   *PaymentController
	Uploads    *UploadController // nil when photos live in S3
	Auth       gin.HandlerFunc
	AdminScope gin.HandlerFunc
	// CORSOrigins are the browser origins allowed to call the API
	CORSOrigins []string
	Logger      *zap.Logger
}

// Engine builds the gin engine with every route registered
func (r *Router) Engine() *gin.Engine {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(middleware.RequestLogger(logger), middleware.Recovery(logger))
	if len(r.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = r.CORSOrigins
		corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", SessionHeader)
		corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
		engine.Use(cors.New(corsConfig))
	}

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/health", r.Health.Health)
		v1.GET("/database/status", r.Health.DatabaseStatus)

		v1.POST("/payments/callback", r.Payments.Callback)

		if r.Uploads != nil {
			v1.GET("/uploads/*key", r.Auth, r.Uploads.GetUploadedImage)
		}

		customer := v1.Group("/flow", r.Auth)
		{
			customer.POST("", r.Flow.Start)
			customer.GET("", r.Flow.Resume)
			customer.DELETE("", r.Flow.Cancel)
			customer.GET("/catalog", r.Flow.Catalog)
			customer.POST("/photos", r.Flow.UploadPhotos)
			customer.PUT("/quote", r.Flow.Quote)
			customer.PUT("/schedule", r.Flow.Schedule)
		}

		admin := v1.Group("/admin", r.Auth, r.AdminScope)
		{
			admin.GET("/panels", r.Panels.ListPanels)
			admin.GET("/panels/:panel/orders", r.Panels.ListOrders)
			admin.GET("/panels/:panel/orders/:id", r.Panels.GetOrder)
			admin.POST("/panels/:panel/orders/:id/actions", r.Panels.ApplyAction)

			admin.GET("/orders/:id", r.Orders.GetOrder)
			admin.PATCH("/orders/:id", r.Orders.UpdateOrder)
			admin.GET("/orders/:id/photos", r.Orders.GetPhotos)
		}
	}

	return engine
}

// Handler wraps the engine with OpenTelemetry HTTP instrumentation
func (r *Router) Handler(serviceName string) http.Handler {
	return otelhttp.NewHandler(r.Engine(), serviceName)
}
