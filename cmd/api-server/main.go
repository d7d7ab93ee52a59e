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
	"github.com/redis/go-redis/v9"

	"github.com/hakwonsoft/kinderbook-api/internal/handler"
	"github.com/hakwonsoft/kinderbook-api/internal/middleware"
	"github.com/hakwonsoft/kinderbook-api/internal/models"
	"github.com/hakwonsoft/kinderbook-api/internal/repository"
	"github.com/hakwonsoft/kinderbook-api/internal/service"
	"github.com/hakwonsoft/kinderbook-api/pkg/cache"
	"github.com/hakwonsoft/kinderbook-api/pkg/config"
	"github.com/hakwonsoft/kinderbook-api/pkg/database"
	"github.com/hakwonsoft/kinderbook-api/pkg/export"
	"github.com/hakwonsoft/kinderbook-api/pkg/jobs"
	"github.com/hakwonsoft/kinderbook-api/pkg/logger"
	corsmiddleware "github.com/hakwonsoft/kinderbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/hakwonsoft/kinderbook-api/pkg/middleware/requestid"
	"github.com/hakwonsoft/kinderbook-api/pkg/storage"
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, story cache disabled", "error", err)
			redisClient = nil
		}
	}

	var store storage.ObjectStore
	if cfg.Storage.Endpoint != "" {
		store, err = storage.NewMinioStore(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.PublicURL, cfg.Storage.UseSSL)
	} else {
		store, err = storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicURL)
	}
	if err != nil {
		logr.Sugar().Fatalw("failed to init object store", "error", err)
	}

	validate := validator.New()

	institutionRepo := repository.NewInstitutionRepository(db)
	classRepo := repository.NewClassRepository(db)
	themeRepo := repository.NewThemeRepository(db)
	userRepo := repository.NewUserRepository(db)
	storyRepo := repository.NewStoryRepository(db)
	storybookRepo := repository.NewStorybookRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	// The queue handler is bound through a closure so the stylizer can be
	// constructed after the story service it depends on.
	var stylizer *service.Stylizer
	queue := jobs.NewQueue("stylize", func(ctx context.Context, job jobs.Job) error {
		return stylizer.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers: cfg.Stylizer.Workers,
		Logger:  logr,
	})

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	classSvc := service.NewClassService(classRepo, institutionRepo, validate, logr)
	themeSvc := service.NewThemeService(themeRepo, institutionRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, classRepo, storyRepo, storybookRepo, store, cacheRepo, validate, logr)
	institutionSvc := service.NewInstitutionService(institutionRepo, userRepo, classRepo, themeRepo, userSvc, cacheRepo, validate, logr)
	storySvc := service.NewStoryService(storyRepo, themeRepo, userRepo, storybookRepo, store, cacheRepo, queue, cfg.Cache.TTL, validate, logr)
	storybookSvc := service.NewStorybookService(storybookRepo, storySvc, export.NewPDFExporter(), validate, logr)
	stylizer = service.NewStylizer(storySvc, cfg.Stylizer.Delay, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	institutionHandler := handler.NewInstitutionHandler(institutionSvc)
	classHandler := handler.NewClassHandler(classSvc)
	themeHandler := handler.NewThemeHandler(themeSvc)
	userHandler := handler.NewUserHandler(userSvc)
	storyHandler := handler.NewStoryHandler(storySvc, metricsSvc)
	storybookHandler := handler.NewStorybookHandler(storybookSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Storage.Endpoint == "" {
		r.Static("/uploads", cfg.Storage.LocalDir)
	}

	auth := middleware.JWT(authSvc)
	staffOnly := middleware.RequireRoles(models.RoleTeacher, models.RoleDirector, models.RoleAdmin)
	managerOnly := middleware.RequireRoles(models.RoleDirector, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", auth, authHandler.Me)

	// queryAlias rewrites a path parameter into the query string so the
	// nested institution and user routes share the flat list handlers.
	queryAlias := func(key string, next gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			q := c.Request.URL.Query()
			q.Set(key, c.Param("id"))
			c.Request.URL.RawQuery = q.Encode()
			next(c)
		}
	}

	institutions := api.Group("/institutions", auth)
	{
		institutions.GET("", adminOnly, institutionHandler.List)
		institutions.POST("", adminOnly, institutionHandler.Create)
		institutions.GET("/:id", managerOnly, institutionHandler.Get)
		institutions.PUT("/:id", managerOnly, institutionHandler.Update)
		institutions.DELETE("/:id", adminOnly, institutionHandler.Delete)
		institutions.GET("/:id/classes", staffOnly, queryAlias("institution_id", classHandler.List))
		institutions.GET("/:id/themes", queryAlias("institution_id", themeHandler.List))
		institutions.GET("/:id/themes/active", queryAlias("institution_id", themeHandler.GetActive))
		institutions.GET("/:id/users", staffOnly, queryAlias("institution_id", userHandler.List))
		institutions.GET("/:id/stories", queryAlias("institution_id", storyHandler.List))
		institutions.POST("/:id/stories/start-production", managerOnly, queryAlias("institution_id", storyHandler.StartProductionAll))
	}

	classes := api.Group("/classes", auth)
	{
		classes.GET("", staffOnly, classHandler.List)
		classes.GET("/:id", staffOnly, classHandler.Get)
		classes.POST("", managerOnly, classHandler.Create)
		classes.PUT("/:id", managerOnly, classHandler.Update)
		classes.DELETE("/:id", managerOnly, classHandler.Delete)
	}

	themes := api.Group("/themes", auth)
	{
		themes.GET("", themeHandler.List)
		themes.GET("/active", themeHandler.GetActive)
		themes.GET("/:id", themeHandler.Get)
		themes.POST("", managerOnly, themeHandler.Create)
		themes.PUT("/:id", managerOnly, themeHandler.Update)
		themes.POST("/:id/activate", managerOnly, themeHandler.Activate)
		themes.POST("/:id/deactivate", managerOnly, themeHandler.Deactivate)
		themes.DELETE("/:id", managerOnly, themeHandler.Delete)
	}

	users := api.Group("/users", auth)
	{
		users.GET("", staffOnly, userHandler.List)
		users.GET("/roster", staffOnly, userHandler.ExportRoster)
		users.GET("/:id", middleware.RBAC("SELF", string(models.RoleTeacher), string(models.RoleDirector), string(models.RoleAdmin)), userHandler.Get)
		users.GET("/:id/stories", middleware.RBAC("SELF", string(models.RoleTeacher), string(models.RoleDirector), string(models.RoleAdmin)), queryAlias("uploader_id", storyHandler.List))
		users.POST("", managerOnly, userHandler.Create)
		users.PUT("/:id", middleware.RBAC("SELF", string(models.RoleDirector), string(models.RoleAdmin)), userHandler.Update)
		users.PUT("/:id/role", managerOnly, userHandler.UpdateRole)
		users.POST("/:id/reset-password", managerOnly, userHandler.ResetPassword)
		users.DELETE("/:id", managerOnly, userHandler.Delete)
	}

	stories := api.Group("/stories", auth)
	{
		stories.GET("", storyHandler.List)
		stories.GET("/:id", storyHandler.Get)
		stories.POST("", storyHandler.Create)
		stories.POST("/:id/register", storyHandler.Register)
		stories.POST("/:id/unregister", storyHandler.Unregister)
		stories.POST("/:id/start-production", staffOnly, storyHandler.StartProduction)
		stories.POST("/start-production-all", managerOnly, storyHandler.StartProductionAll)
		stories.DELETE("/:id", staffOnly, storyHandler.Delete)
		stories.GET("/:id/storybook", storybookHandler.GetByStory)
		stories.GET("/:id/storybook/pdf", storybookHandler.ExportPDFByStory)
		stories.PUT("/:id/storybook", staffOnly, storybookHandler.Save)
	}

	storybooks := api.Group("/storybooks", auth)
	{
		storybooks.GET("", storybookHandler.List)
		storybooks.GET("/:id", storybookHandler.Get)
		storybooks.GET("/:id/pdf", storybookHandler.ExportPDF)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
