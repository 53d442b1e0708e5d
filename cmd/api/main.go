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

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/helperdesk/helper-tickets/internal/api/http"
	"github.com/helperdesk/helper-tickets/internal/api/http/handlers"
	"github.com/helperdesk/helper-tickets/internal/auth"
	"github.com/helperdesk/helper-tickets/internal/config"
	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/mailer"
	"github.com/helperdesk/helper-tickets/internal/observability"
	"github.com/helperdesk/helper-tickets/internal/persistence"
	"github.com/helperdesk/helper-tickets/internal/repository"
	"github.com/helperdesk/helper-tickets/internal/service"
	"github.com/helperdesk/helper-tickets/internal/triage"
	"github.com/helperdesk/helper-tickets/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	envFile := pflag.String("env-file", "", "extra .env file loaded before the environment is read")
	pflag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("failed to load env file: %v", err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.Enabled() {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rds := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rds.Close()

	var (
		ticketRepo repository.TicketRepository
		userRepo   repository.UserRepository
	)
	if pg.Enabled() {
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
		userRepo = repository.NewUserRepository(pg.PoolHandle())
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		store := repository.NewMemoryStore()
		ticketRepo = store.Tickets()
		userRepo = store.Users()
	}

	bus, err := newBus(cfg.Events, rds, logger)
	if err != nil {
		logger.Fatal("failed to init event bus", zap.Error(err))
	}

	var revocations auth.RevocationStore = auth.NewMemoryRevocations()
	if rds.Available {
		revocations = auth.NewRedisRevocations(rds.Client, "")
	}

	model, err := triage.NewModel(cfg.Triage, &http.Client{Timeout: cfg.Triage.Timeout()})
	if err != nil {
		logger.Fatal("failed to init triage model", zap.Error(err))
	}
	mail := mailer.New(cfg.Mailer, logger)

	workflow := service.NewTicketWorkflow(service.WorkflowDependencies{
		TicketRepo: ticketRepo,
		Analyzer:   triage.NewAnalyzer(model, logger.Named("triage")),
		Matcher:    service.NewModeratorMatcher(userRepo, logger.Named("matcher")),
		Mailer:     mail,
		Metrics:    metrics,
		Logger:     logger.Named("workflow"),
		Settings: service.WorkflowSettings{
			TriageTimeout: cfg.Triage.Timeout(),
			NotifyTimeout: cfg.Workflow.NotifyTimeout(),
		},
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:    userRepo,
		Revocations: revocations,
		Publisher:   bus,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Publisher:  bus,
		Logger:     logger,
	})
	notifications := service.NewNotificationService(userRepo, mail, logger)

	eventWorker := worker.New(worker.Dependencies{
		Bus:     bus,
		Tickets: workflow,
		Welcome: notifications,
		Retry: events.RetryPolicy{
			MaxAttempts: cfg.Workflow.MaxAttempts,
			Backoff:     cfg.Workflow.RetryBackoff(),
		},
		Logger: logger.Named("worker"),
	})
	workerDone := make(chan error, 1)
	go func() { workerDone <- eventWorker.Run(ctx) }()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	var checks []handlers.DependencyCheck
	if rds.Client != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Ping: rds.Ping})
	}
	if pg.Enabled() {
		checks = append(checks, handlers.DependencyCheck{Name: "postgres", Ping: pg.Ping})
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), userRepo, authService.Revocations()),
		Metrics:        metrics.Handler(),
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Error("fiber listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := bus.Close(); err != nil {
		logger.Warn("event bus close", zap.Error(err))
	}
	select {
	case err := <-workerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("event worker stopped with error", zap.Error(err))
		}
	case <-time.After(shutdownTimeout):
		logger.Warn("event worker did not stop in time")
	}
}

func newBus(cfg config.EventsConfig, rds *persistence.Redis, logger *zap.Logger) (events.Bus, error) {
	switch cfg.Backend {
	case "redis":
		if rds.Client == nil {
			return nil, errors.New("events backend redis requires REDIS_ADDR")
		}
		return events.NewRedisBus(rds.Client, events.RedisBusOptions{
			Queue:   cfg.RedisQueue,
			Workers: cfg.Workers,
		}, logger.Named("events")), nil
	case "kafka":
		return events.NewKafkaBus(events.KafkaBusOptions{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger.Named("events")), nil
	case "", "memory":
		return events.NewMemoryBus(cfg.Workers, 0, logger.Named("events")), nil
	}
	return nil, errors.New("unknown events backend " + cfg.Backend)
}
