package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crewdesk/crewdesk/internal/app"
	"github.com/crewdesk/crewdesk/internal/auth"
	"github.com/crewdesk/crewdesk/internal/authz"
	"github.com/crewdesk/crewdesk/internal/billing"
	"github.com/crewdesk/crewdesk/internal/branches"
	"github.com/crewdesk/crewdesk/internal/clients"
	"github.com/crewdesk/crewdesk/internal/observability"
	"github.com/crewdesk/crewdesk/internal/platform/cache"
	"github.com/crewdesk/crewdesk/internal/platform/db"
	"github.com/crewdesk/crewdesk/internal/shared"
	"github.com/crewdesk/crewdesk/internal/tenants"
	"github.com/crewdesk/crewdesk/internal/users"
	"github.com/crewdesk/crewdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "crewdesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	policies := authz.DefaultPolicies()
	if err := policies.RequireCoverage(authz.Kinds()...); err != nil {
		logger.Error("policy coverage", slog.Any("error", err))
		os.Exit(1)
	}
	scopeResolver := authz.NewPGScopeResolver(dbpool)
	authorizer, err := authz.NewAuthorizer(policies, scopeResolver)
	if err != nil {
		logger.Error("build authorizer", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()
	authzMiddleware := authz.Middleware{
		Resolver:   authz.NewResolver(authz.NewPGIdentityRepository(dbpool)),
		Authorizer: authorizer,
		Logger:     logger,
		Recorder:   metrics,
	}

	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	tenantsService := tenants.NewService(tenants.NewRepository(dbpool), auditLogger)
	tenantsHandler := tenants.NewHandler(logger, tenantsService, authzMiddleware)

	clientsService := clients.NewService(clients.NewRepository(dbpool), auditLogger)
	clientsHandler := clients.NewHandler(logger, clientsService, authzMiddleware)

	branchesService := branches.NewService(branches.NewRepository(dbpool), scopeResolver, auditLogger)
	branchesHandler := branches.NewHandler(logger, branchesService, authzMiddleware)

	usersService := users.NewService(users.NewRepository(dbpool), auditLogger)
	usersHandler := users.NewHandler(logger, usersService, authzMiddleware)

	billingService := billing.NewService(billing.NewRepository(dbpool), auditLogger)
	billingHandler := billing.NewHandler(logger, billingService, authzMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		TenantsHandler:  tenantsHandler,
		ClientsHandler:  clientsHandler,
		BranchesHandler: branchesHandler,
		UsersHandler:    usersHandler,
		BillingHandler:  billingHandler,
		JobsHandler:     jobsHandler,
		Authz:           authzMiddleware,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
