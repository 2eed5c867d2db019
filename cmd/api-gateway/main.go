package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/edt-api/api/swagger"
	"github.com/noah-isme/edt-api/internal/handler"
	"github.com/noah-isme/edt-api/internal/middleware"
	"github.com/noah-isme/edt-api/internal/repository"
	"github.com/noah-isme/edt-api/internal/service"
	"github.com/noah-isme/edt-api/pkg/cache"
	"github.com/noah-isme/edt-api/pkg/config"
	"github.com/noah-isme/edt-api/pkg/database"
	"github.com/noah-isme/edt-api/pkg/jobs"
	"github.com/noah-isme/edt-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edt-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edt-api/pkg/middleware/requestid"
)

// @title EDT Scheduling API
// @version 0.1.0
// @description Timetable booking and conflict detection service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metrics := service.NewMetricsService()

	cacheEnabled := cfg.Cache.Enabled
	var cacheRepo service.CacheRepository
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			cacheEnabled = false
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, logr, cacheEnabled)

	scheduleRepo := repository.NewScheduleRepository(db)
	timeSlotRepo := repository.NewTimeSlotRepository(db)
	conflictRepo := repository.NewConflictRepository(db)
	makeupRepo := repository.NewMakeupRepository(db)
	unavailabilityRepo := repository.NewUnavailabilityRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)
	if cfg.Notifications.Enabled {
		notificationSvc.Start(ctx)
		defer notificationSvc.Stop()
	}

	checker := service.NewConflictChecker(scheduleRepo, unavailabilityRepo)
	timeSlotSvc := service.NewTimeSlotService(timeSlotRepo, validate, logr)
	conflictSvc := service.NewConflictService(conflictRepo, cacheSvc, metrics, validate, logr, cfg.Cache.ConflictTTL)
	scannerSvc := service.NewScannerService(scheduleRepo, conflictSvc, checker, notificationSvc, metrics, logr, cfg.Scanner.Interval, cfg.Scanner.HorizonDays)
	scheduleSvc := service.NewScheduleService(scheduleRepo, catalogRepo, timeSlotSvc, checker, makeupRepo, conflictRepo, cacheSvc, notificationSvc, validate, logr, cfg.Cache.WeeklyTTL)
	makeupSvc := service.NewMakeupService(makeupRepo, scheduleRepo, timeSlotSvc, catalogRepo, cacheSvc, notificationSvc, validate, logr)
	generationSvc := service.NewGenerationService(generationRepo, scannerSvc, logr)
	unavailabilitySvc := service.NewUnavailabilityService(unavailabilityRepo, catalogRepo, validate, logr)
	catalogSvc := service.NewCatalogService(catalogRepo)

	if cfg.Scanner.Enabled {
		go scannerSvc.Run(ctx)
	}

	timeSlotHandler := handler.NewTimeSlotHandler(timeSlotSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	conflictHandler := handler.NewConflictHandler(conflictSvc, scannerSvc)
	makeupHandler := handler.NewMakeupHandler(makeupSvc)
	unavailabilityHandler := handler.NewUnavailabilityHandler(unavailabilitySvc)
	generationHandler := handler.NewGenerationHandler(generationSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.Actor(cfg.JWT.Secret))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	slots := api.Group("/time-slots")
	{
		slots.GET("", timeSlotHandler.List)
		slots.POST("", timeSlotHandler.Resolve)
		slots.GET("/:id", timeSlotHandler.Get)
		slots.PATCH("/:id", timeSlotHandler.Rename)
	}

	schedules := api.Group("/schedules")
	{
		schedules.GET("", scheduleHandler.List)
		schedules.POST("", scheduleHandler.Create)
		schedules.POST("/check-conflicts", scheduleHandler.CheckConflicts)
		schedules.GET("/weekly", scheduleHandler.Weekly)
		schedules.GET("/stats", scheduleHandler.Stats)
		schedules.GET("/:id", scheduleHandler.Get)
		schedules.PUT("/:id", scheduleHandler.Update)
		schedules.DELETE("/:id", scheduleHandler.Deactivate)
		schedules.POST("/:id/cancel", scheduleHandler.Cancel)
	}

	conflicts := api.Group("/conflicts")
	{
		conflicts.GET("", conflictHandler.List)
		conflicts.POST("/scan", conflictHandler.Scan)
		conflicts.POST("/:id/resolve", conflictHandler.Resolve)
	}

	makeups := api.Group("/makeup-sessions")
	{
		makeups.GET("", makeupHandler.List)
		makeups.POST("", makeupHandler.Create)
		makeups.GET("/:id", makeupHandler.Get)
		makeups.POST("/:id/approve", makeupHandler.Approve)
		makeups.POST("/:id/reject", makeupHandler.Reject)
		makeups.POST("/:id/complete", makeupHandler.Complete)
	}

	unavailabilities := api.Group("/unavailabilities")
	{
		unavailabilities.GET("", unavailabilityHandler.List)
		unavailabilities.POST("", unavailabilityHandler.Create)
		unavailabilities.DELETE("/:id", unavailabilityHandler.Delete)
	}

	generations := api.Group("/generations")
	{
		generations.GET("", generationHandler.List)
		generations.POST("", generationHandler.Start)
		generations.GET("/:id", generationHandler.Get)
		generations.POST("/:id/cancel", generationHandler.Cancel)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	api.GET("/teachers", catalogHandler.ListTeachers)
	api.GET("/rooms", catalogHandler.ListRooms)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
