package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-console/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-console/internal/app"
	"github.com/odyssey-erp/odyssey-console/internal/audit"
	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/console"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/platform/db"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/internal/view"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		if app.InTestMode() {
			slog.Default().Info("test mode detected, skipping runtime startup")
			return 0
		}
		if err := serve(ctx); err != nil {
			slog.Default().Error("serve", slog.Any("error", err))
			return 1
		}
		return 0
	case "session":
		cfg, err := app.LoadAuthConfig()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "session: load config: %v\n", err)
			return 1
		}
		sessionCLI := &cli.SessionCLI{Client: auth.NewClient(cfg.AuthBaseURL, cfg.AuthTimeout)}
		return sessionCLI.Run(ctx, args)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "odyssey: unknown command %q (want serve or session)\n", command)
		return 1
	}
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var recorder audit.Recorder
	if cfg.AuditEnabled() {
		pool, err := db.New(ctx, cfg.AuditPGDSN, 4)
		if err != nil {
			return err
		}
		defer pool.Close()
		err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return audit.NewPGRecorder(tx).EnsureSchema(ctx)
		})
		if err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
		recorder = audit.NewPGRecorder(pool)
		logger.Info("audit trail enabled")
	}

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "odyssey_console_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	consoleHandler := console.NewHandler(console.HandlerParams{
		Logger:         logger,
		Client:         auth.NewClient(cfg.AuthBaseURL, cfg.AuthTimeout),
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,
		Recorder:       recorder,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		ConsoleHandler: consoleHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("auth_base_url", cfg.AuthBaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
