package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kendall-kelly/jersey-repair-api/changefeed"
	"github.com/kendall-kelly/jersey-repair-api/config"
	"github.com/kendall-kelly/jersey-repair-api/controllers"
	"github.com/kendall-kelly/jersey-repair-api/flow"
	"github.com/kendall-kelly/jersey-repair-api/logger"
	"github.com/kendall-kelly/jersey-repair-api/middleware"
	"github.com/kendall-kelly/jersey-repair-api/notifier"
	"github.com/kendall-kelly/jersey-repair-api/panels"
	"github.com/kendall-kelly/jersey-repair-api/services"
	"github.com/kendall-kelly/jersey-repair-api/store"
	"github.com/kendall-kelly/jersey-repair-api/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.LogLevel, cfg.IsProduction())
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog.Info("starting Jersey Repair API", zap.String("env", cfg.GoEnv), zap.String("port", cfg.Port))

	shutdownTracing := telemetry.Setup(cfg.ServiceName, cfg.OTELEndpoint, cfg.OTELInsecure, zlog)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			zlog.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	db, err := config.OpenDatabase(cfg, zlog)
	if err != nil {
		return err
	}
	if err := store.AutoMigrate(db); err != nil {
		return err
	}
	if err := notifier.AutoMigrate(db); err != nil {
		return err
	}
	zlog.Info("database migration completed successfully")

	opts := feedOptions(cfg)
	feed, err := changefeed.Open(opts, zlog)
	if err != nil {
		return err
	}
	defer feed.Close()

	panelFeed, err := openPanelFeed(opts, feed, zlog)
	if err != nil {
		return err
	}
	if panelFeed != feed {
		defer panelFeed.Close()
	}

	orders := store.New(db, feed, zlog)

	mailer, err := services.NewMailer(cfg, zlog)
	if err != nil {
		return err
	}
	notify, err := notifier.New(db, mailer, cfg.AdminEmail, zlog)
	if err != nil {
		return err
	}

	registry := panels.NewRegistry(orders, zlog)

	images, uploads, err := imageStorage(ctx, cfg, zlog)
	if err != nil {
		return err
	}

	catalog, err := flow.DefaultCatalog()
	if err != nil {
		return err
	}
	customerFlow := flow.New(orders, catalog, zlog,
		flow.WithProfiles(services.NewAuth0Service(cfg.Auth0Domain)),
		flow.WithImages(images))

	auth, err := middleware.EnsureValidToken(cfg, zlog)
	if err != nil {
		return err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := &controllers.Router{
		Health:      controllers.NewHealthController(db),
		Flow:        controllers.NewFlowController(customerFlow, images, zlog),
		Panels:      controllers.NewPanelController(registry, zlog),
		Orders:      controllers.NewAdminOrderController(orders, images, zlog),
		Payments:    controllers.NewPaymentController(customerFlow, cfg.PaymentWebhookSecret, zlog),
		Uploads:     uploads,
		Auth:        auth,
		AdminScope:  middleware.RequireScope(cfg.AdminScope),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      zlog,
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Handler(cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("server is running", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return notify.Run(gctx, feed)
	})
	g.Go(func() error {
		if err := registry.RefreshAll(gctx); err != nil {
			zlog.Warn("initial panel load failed, panels load on first use", zap.Error(err))
		}
		return registry.Run(gctx, panelFeed)
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func feedOptions(cfg *config.Config) changefeed.Options {
	return changefeed.Options{
		Driver:       cfg.ChangefeedDriver,
		Buffer:       cfg.ChangefeedBuffer,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		AMQPQueue:    cfg.AMQPQueue,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
		KafkaGroupID: cfg.KafkaGroupID,
	}
}

// openPanelFeed returns the subscription the panel caches sync from. Every process
// keeps its own caches, so with a broker each one needs every event: AMQP gets an
// exclusive queue and Kafka a consumer group of its own. On the in-memory hub the
// panels subscribe lossily, so a stalled cache can never hold up writers or memory.
func openPanelFeed(opts changefeed.Options, shared changefeed.Feed, zlog *zap.Logger) (changefeed.Feed, error) {
	switch opts.Driver {
	case changefeed.DriverAMQP:
		opts.AMQPQueue = ""
	case changefeed.DriverKafka:
		opts.KafkaGroupID = opts.KafkaGroupID + "-panels-" + uuid.NewString()
	default:
		if hub, ok := shared.(*changefeed.Hub); ok {
			return hub.Lossy(), nil
		}
		return shared, nil
	}
	return changefeed.Open(opts, zlog)
}

// imageStorage picks S3 when a bucket is configured and local disk otherwise. The
// upload controller is only served for local disk.
func imageStorage(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (services.ImageService, *controllers.UploadController, error) {
	if cfg.AWSS3Bucket != "" {
		s3, err := services.NewS3Service(ctx, cfg, zlog)
		if err != nil {
			return nil, nil, err
		}
		zlog.Info("storing photos in S3", zap.String("bucket", cfg.AWSS3Bucket))
		return services.NewS3ImageService(s3), nil, nil
	}

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		return nil, nil, err
	}
	zlog.Info("storing photos on local disk", zap.String("dir", cfg.UploadDir))
	return services.NewLocalImageService(cfg.UploadDir), controllers.NewUploadController(cfg.UploadDir), nil
}
