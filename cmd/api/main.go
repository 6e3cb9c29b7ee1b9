package main

import (
	"context"
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

	_ "github.com/minhtc/capstone-hub-api/api/swagger"
	"github.com/minhtc/capstone-hub-api/internal/handler"
	"github.com/minhtc/capstone-hub-api/internal/middleware"
	"github.com/minhtc/capstone-hub-api/internal/models"
	"github.com/minhtc/capstone-hub-api/internal/repository"
	"github.com/minhtc/capstone-hub-api/internal/service"
	"github.com/minhtc/capstone-hub-api/pkg/cache"
	"github.com/minhtc/capstone-hub-api/pkg/config"
	"github.com/minhtc/capstone-hub-api/pkg/database"
	"github.com/minhtc/capstone-hub-api/pkg/logger"
	corsmiddleware "github.com/minhtc/capstone-hub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/minhtc/capstone-hub-api/pkg/middleware/requestid"
)

// @title Capstone Hub API
// @version 1.0.0
// @description Topic and registration workflow for capstone projects
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	topicRepo := repository.NewTopicRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	metricsService := service.NewMetricsService()

	cacheService := service.NewCacheService(nil, cfg.Topics.CacheTTL, metricsService, logr, false)
	if cfg.Topics.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, topic cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, cfg.Topics.CacheTTL, metricsService, logr, true)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	// Services.
	notificationService := service.NewNotificationService(notificationRepo, cfg.Notifications.WorkerConcurrency, logr)
	notificationService.Start(ctx)
	defer notificationService.Stop()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	semesterService := service.NewSemesterService(semesterRepo, validate, logr)
	topicService := service.NewTopicService(topicRepo, semesterRepo, notificationService, cacheService,
		cfg.Screening.SimilarityThreshold, metricsService, validate, logr)
	reviewService := service.NewReviewService(reviewRepo, userRepo, topicRepo, notificationService,
		cfg.Review.ReviewersPerTopic, metricsService, validate, logr)
	teamService := service.NewTeamService(teamRepo, semesterRepo, notificationService, validate, logr)
	registrationService := service.NewRegistrationService(registrationRepo, teamRepo, topicRepo,
		semesterRepo, topicService, notificationService, metricsService, validate, logr)
	screeningService := service.NewScreeningService(topicRepo, topicService, reviewService,
		service.NewLexicalSimilarityChecker(topicRepo), cfg.Screening.WorkerConcurrency, cfg.Screening.WorkerRetries, logr)
	screeningService.Start(ctx)
	defer screeningService.Stop()
	exportService := service.NewExportService(topicRepo, registrationRepo, semesterRepo, nil, nil, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	semesterHandler := handler.NewSemesterHandler(semesterService)
	topicHandler := handler.NewTopicHandler(topicService, screeningService)
	reviewHandler := handler.NewReviewHandler(reviewService)
	teamHandler := handler.NewTeamHandler(teamService)
	registrationHandler := handler.NewRegistrationHandler(registrationService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/semesters", semesterHandler.List)
		authed.GET("/semesters/active", semesterHandler.GetActive)
		authed.GET("/semesters/:id", semesterHandler.Get)

		admin := authed.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator))
		{
			admin.POST("/semesters", semesterHandler.Create)
			admin.POST("/semesters/:id/activate", semesterHandler.Activate)
			admin.PUT("/semesters/:id/registration-period", semesterHandler.SetRegistrationPeriod)
			admin.PUT("/semesters/:id/topic-submission-period", semesterHandler.SetTopicSubmissionPeriod)
			admin.GET("/metrics/snapshot", metricsHandler.Snapshot)
			admin.POST("/topics/:id/ai-result", topicHandler.ApplyAIResult)
			admin.POST("/registrations/:id/finalize", registrationHandler.Finalize)
		}

		authed.GET("/topics", topicHandler.List)
		authed.GET("/topics/available", topicHandler.ListAvailable)
		authed.GET("/topics/code/:code", topicHandler.GetByCode)
		authed.GET("/topics/:id", topicHandler.Get)
		authed.GET("/topics/:id/reviews", reviewHandler.ListByTopic)
		authed.GET("/topics/:id/registrations", registrationHandler.ListByTopic)

		supervisors := authed.Group("")
		supervisors.Use(middleware.RequireRoles(models.RoleSupervisor, models.RoleAdmin))
		{
			supervisors.POST("/topics", topicHandler.Create)
			supervisors.PUT("/topics/:id", topicHandler.Update)
			supervisors.POST("/topics/:id/submit", topicHandler.Submit)
			supervisors.POST("/topics/:id/resubmit", topicHandler.Resubmit)
			supervisors.GET("/registrations", registrationHandler.ListMine)
			supervisors.POST("/registrations/:id/approve", registrationHandler.Approve)
			supervisors.POST("/registrations/:id/reject", registrationHandler.Reject)
		}

		coordinators := authed.Group("")
		coordinators.Use(middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin))
		{
			coordinators.POST("/topics/:id/publish", topicHandler.Publish)
			coordinators.POST("/topics/:id/coordinator-decision", reviewHandler.CoordinatorDecide)
			coordinators.POST("/topics/:id/assign-reviewers", reviewHandler.Assign)
		}

		reviewers := authed.Group("")
		reviewers.Use(middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin))
		{
			reviewers.GET("/reviews/pending", reviewHandler.ListPending)
			reviewers.POST("/reviews/:id/decide", reviewHandler.Decide)
		}

		students := authed.Group("")
		students.Use(middleware.RequireRoles(models.RoleStudent))
		{
			students.POST("/teams", teamHandler.Create)
			students.POST("/teams/join", teamHandler.Join)
			students.GET("/teams/mine", teamHandler.GetMine)
			students.POST("/teams/:id/leave", teamHandler.Leave)
			students.DELETE("/teams/:id/members/:userId", teamHandler.Kick)
			students.POST("/teams/:id/transfer-leadership", teamHandler.TransferLeadership)
			students.POST("/teams/:id/invite-code", teamHandler.RegenerateInviteCode)
			students.POST("/registrations", registrationHandler.Register)
		}

		authed.GET("/teams/:id", teamHandler.Get)
		authed.GET("/teams/:id/registrations", registrationHandler.ListByTeam)

		authed.GET("/notifications", notificationHandler.List)
		authed.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		authed.POST("/notifications/:id/read", notificationHandler.MarkRead)
		authed.POST("/notifications/read-all", notificationHandler.MarkAllRead)

		if cfg.Export.Enabled {
			exports := authed.Group("")
			exports.Use(middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin))
			{
				exports.GET("/semesters/:id/export", exportHandler.TopicRoster)
				exports.GET("/topics/:id/export", exportHandler.RegistrationSheet)
			}
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	logr.Sugar().Infow("server stopped")
}
