// Flight Assistant - conversational flight search server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/flight-assistant/internal/agent"
	"github.com/ashureev/flight-assistant/internal/api"
	"github.com/ashureev/flight-assistant/internal/config"
	"github.com/ashureev/flight-assistant/internal/healthgrpc"
	"github.com/ashureev/flight-assistant/internal/identity"
	"github.com/ashureev/flight-assistant/internal/llm"
	"github.com/ashureev/flight-assistant/internal/logging"
	"github.com/ashureev/flight-assistant/internal/middleware"
	"github.com/ashureev/flight-assistant/internal/session"
	"github.com/ashureev/flight-assistant/internal/store"
	"github.com/ashureev/flight-assistant/internal/tools"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// redisLockPrefix keeps lock keys outside the thread key namespace.
const redisLockPrefix = "flightassistant:"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, slog.LevelInfo, cfg.IsDevelopment())
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Backend)

	// Initialize the checkpoint store.
	repo, locker, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected", "backend", cfg.Store.Backend)

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(locker))
	}
	sessions := session.NewManager(repo, sessionOpts...)

	// Initialize models and tools.
	workerModel, err := llm.NewOpenAI(llm.Config{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.WorkerModel,
		BaseURL: cfg.Model.BaseURL,
	})
	if err != nil {
		slog.Error("Failed to initialize worker model", "error", err)
		os.Exit(1)
	}
	evaluatorModel, err := llm.NewOpenAI(llm.Config{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.EvaluatorModel,
		BaseURL: cfg.Model.BaseURL,
	})
	if err != nil {
		slog.Error("Failed to initialize evaluator model", "error", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry(
		tools.NewFareSearch(cfg.Fares.BaseURL, cfg.Fares.Timeout).Tool(),
		tools.NewEmail(tools.EmailSettings{
			Sender:      cfg.Email.Sender,
			AppPassword: cfg.Email.AppPassword,
			SMTPHost:    cfg.Email.SMTPHost,
			SMTPPort:    cfg.Email.SMTPPort,
		}, nil).Tool(),
	)
	if cfg.Email.Sender == "" || cfg.Email.AppPassword == "" {
		slog.Warn("Email credentials not configured, send_email will report missing credentials")
	}

	metrics := agent.NewMetrics()
	graph := agent.NewGraph(
		agent.NewWorker(workerModel, registry.Definitions()),
		registry,
		agent.NewEvaluator(evaluatorModel),
		agent.WithMaxEvaluatorCycles(cfg.Agent.MaxEvaluatorCycles),
		agent.WithHooks(metrics.Hooks()),
		agent.WithGraphLogger(logger),
	)
	service := agent.NewService(sessions, graph,
		agent.WithSuccessCriteria(cfg.Agent.SuccessCriteria),
		agent.WithMetrics(metrics),
		agent.WithLogger(logger),
	)
	defer func() {
		if closeErr := service.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	conversationLogger, err := agent.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	chatHandler := agent.NewHandler(service, cfg, conversationLogger)
	defer chatHandler.Close()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware)

	// Public routes.
	r.Get("/", api.Health)
	r.Handle("/metrics", metrics.Handler())

	chatHandler.RegisterRoutes(r)

	// Chat turns can take minutes while the fare service wakes up.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start retention worker.
	store.StartRetentionWorker(ctx, repo, cfg.Store.SessionTTL, nil)
	slog.Info("Retention worker started", "session_ttl", cfg.Store.SessionTTL)

	var healthServer *healthgrpc.Server
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "error", err)
			os.Exit(1)
		}
		healthServer = healthgrpc.NewServer(logger)
		go healthServer.Watch(ctx, service, 15*time.Second)
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if healthServer != nil {
		healthServer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// openStore returns the configured repository and, for Redis, a distributed per-thread locker.
func openStore(cfg *config.Config) (store.Repository, session.Locker, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		repo := store.NewRedis(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB,
			store.WithTTL(cfg.Store.SessionTTL),
		)
		return repo, store.NewRedisLocker(repo.Client(), redisLockPrefix), nil
	case config.StoreMemory:
		return store.NewMemory(), nil, nil
	default:
		repo, err := store.NewSQLite(cfg.Store.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return repo, nil, nil
	}
}
