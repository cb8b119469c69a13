package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ScepterCode/project-nest-api/internal/authz"
	"github.com/ScepterCode/project-nest-api/internal/config"
	"github.com/ScepterCode/project-nest-api/internal/database"
	"github.com/ScepterCode/project-nest-api/internal/handler"
	"github.com/ScepterCode/project-nest-api/internal/middleware"
	"github.com/ScepterCode/project-nest-api/internal/models"
	"github.com/ScepterCode/project-nest-api/internal/repository"
	"github.com/ScepterCode/project-nest-api/internal/router"
	"github.com/ScepterCode/project-nest-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Class{}, &models.Membership{}, &models.DepartmentAssignment{}, &models.AuditEntry{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Redis and NATS are optional: the dashboard runs uncached and audit
	// fan-out is skipped when they are absent.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditService := service.NewAuditService(auditRepo, natsConn, cfg.AuditSubject, logger)
	rosterService := service.NewRosterService(membershipRepo, classRepo, auditService, validate, cfg.StorageCallTimeout, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, userRepo, auditService, validate, cfg.BatchWorkers, cfg.StorageCallTimeout, logger)
	dashboardService := service.NewDashboardService(userRepo, membershipRepo, nil, nil, auditService, redisClient, cfg.DashboardCacheTTL, cfg.StorageCallTimeout, logger)

	resolver := authz.NewResolver(userRepo, logger)

	rosterHandler := handler.NewRosterHandler(rosterService, logger)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, logger)
	auditHandler := handler.NewAuditHandler(auditService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RosterHandler:     rosterHandler,
		AssignmentHandler: assignmentHandler,
		DashboardHandler:  dashboardHandler,
		AuditHandler:      auditHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		CallerMiddleware:  middleware.WithCaller(resolver),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
