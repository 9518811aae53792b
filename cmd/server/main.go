// Package main runs the event registration HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventorizon/backend/config"
	"github.com/eventorizon/backend/internal/analytics"
	"github.com/eventorizon/backend/internal/auth"
	"github.com/eventorizon/backend/internal/emaillogs"
	"github.com/eventorizon/backend/internal/events"
	"github.com/eventorizon/backend/internal/middleware"
	"github.com/eventorizon/backend/internal/models"
	"github.com/eventorizon/backend/internal/passes"
	"github.com/eventorizon/backend/internal/payments"
	"github.com/eventorizon/backend/internal/realtime"
	"github.com/eventorizon/backend/internal/registrations"
	"github.com/eventorizon/backend/pkg/database"
	"github.com/eventorizon/backend/pkg/queue"
	"github.com/eventorizon/backend/pkg/redis"
	"github.com/eventorizon/backend/pkg/response"
	"github.com/eventorizon/backend/pkg/storage"
	"github.com/eventorizon/backend/pkg/validation"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := validation.Register(); err != nil {
		logger.Fatal("validation", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	objects := newObjectStore(ctx, cfg, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	catalog := events.NewCache(rdb.Client, time.Duration(cfg.Redis.CatalogTTLSeconds)*time.Second, logger)
	eventHandler := events.NewHandler(eventRepo, objects, catalog, cfg.Uploads.MaxThumbnailBytes, logger)
	requireOwner := events.RequireEventOwner(eventRepo)

	// Registrations
	gateway := payments.NewRazorpay(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.Currency,
		time.Duration(cfg.Razorpay.TimeoutSeconds)*time.Second, logger)
	registrationSvc := registrations.NewService(registrations.Deps{
		Store:        registrations.NewRepository(pool),
		Gateway:      gateway,
		Verifier:     payments.NewVerifier(cfg.Razorpay.KeySecret),
		Passes:       passes.NewQRRenderer(cfg.Server.PublicBaseURL, 256),
		Certificates: passes.NewCertificateRenderer(cfg.Certificate.IssuerName),
		Notifier:     jobQueue,
		Checkins:     hub,
		Catalog:      catalog,
		Logger:       logger,
	})
	registrationHandler := registrations.NewHandler(registrationSvc, logger)

	analyticsHandler := analytics.NewHandler(analytics.NewRepository(pool), logger)
	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(pool))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/health/ready", readiness(pool, rdb))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if local, ok := objects.(*storage.Local); ok {
		router.Static("/uploads", local.Dir)
	}

	api := router.Group("/api")

	// Public
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}
	api.GET("/events", eventHandler.List)
	api.GET("/events/:id", eventHandler.GetByID)
	api.GET("/verify/:code", registrationHandler.VerifyAttendance)
	api.GET("/certificate/:code", registrationHandler.Certificate)

	// WebSocket (token in query; no Authorization header required)
	api.GET("/ws", realtime.ServeWs(hub, realtime.NewUpgrader(cfg.Server.AllowedOrigins()),
		wsAuthenticate(jwtService), wsAuthorize(eventRepo), logger))

	// Protected API (JWT required)
	protected := api.Group("")
	protected.Use(middleware.JWT(jwtService))
	{
		student := middleware.RequireRole(models.RoleStudent)
		organizer := middleware.RequireRole(models.RoleOrganizer)

		protected.POST("/events/:id/create-payment-order", student, registrationHandler.CreatePaymentOrder)
		protected.POST("/events/:id/verify-payment-and-register", student, registrationHandler.VerifyPaymentAndRegister)
		protected.GET("/student/registrations", student, registrationHandler.ListMine)
		protected.GET("/student/registrations/:code/pass", student, registrationHandler.Pass)

		protected.POST("/events", organizer, eventHandler.Create)
		protected.DELETE("/events/:id", organizer, requireOwner, eventHandler.Delete)
		protected.GET("/organizer/events", organizer, eventHandler.ListMine)
		protected.GET("/organizer/events/:id/registrations", organizer, requireOwner, registrationHandler.ListForEvent)
		protected.GET("/organizer/events/:id/stats", organizer, requireOwner, analyticsHandler.EventStats)
		protected.GET("/organizer/events/:id/emails", organizer, requireOwner, emailLogsHandler.ListByEvent)

		protected.GET("/admin/events", middleware.RequireRole(models.RoleAdmin), analyticsHandler.AdminEvents)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newObjectStore uses S3 when a thumbnails bucket is configured, local disk otherwise.
func newObjectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.ObjectStore {
	if cfg.AWS.S3Enabled() {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ThumbnailsBucket,
		}, logger)
		if err == nil {
			return s3Client
		}
		logger.Warn("s3 disabled, using local uploads", zap.Error(err))
	}
	local, err := storage.NewLocal(cfg.Uploads.Dir, cfg.Server.PublicBaseURL+"/uploads")
	if err != nil {
		logger.Fatal("uploads", zap.Error(err))
	}
	return local
}

func readiness(pool *pgxpool.Pool, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(ctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ready"})
	}
}

func wsAuthenticate(jwtService *auth.JWTService) realtime.Authenticate {
	return func(token string) (realtime.Viewer, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return realtime.Viewer{}, err
		}
		return realtime.Viewer{UserID: claims.UserID, Role: claims.Role}, nil
	}
}

// wsAuthorize lets admins and the owning organizer watch an event's check-ins.
func wsAuthorize(store events.Store) realtime.Authorize {
	return func(ctx context.Context, eventID uuid.UUID, v realtime.Viewer) (int, bool) {
		switch models.Role(v.Role) {
		case models.RoleAdmin, models.RoleOrganizer:
		default:
			return http.StatusForbidden, false
		}
		e, err := store.GetByID(ctx, eventID)
		if errors.Is(err, pgx.ErrNoRows) {
			return http.StatusNotFound, false
		}
		if err != nil {
			return http.StatusInternalServerError, false
		}
		if models.Role(v.Role) != models.RoleAdmin && e.OrganizerID != v.UserID {
			return http.StatusForbidden, false
		}
		return 0, true
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
