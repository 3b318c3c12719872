package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"alert-dispatch/internal/api/handlers"
	"alert-dispatch/internal/api/middleware"
	"alert-dispatch/internal/db/store"
	"alert-dispatch/internal/scheduler"
	"alert-dispatch/internal/tracker"
	ws "alert-dispatch/internal/websocket"
	"alert-dispatch/pkg/alert"
	"alert-dispatch/pkg/config"
	"alert-dispatch/pkg/httpclient"
	"alert-dispatch/pkg/logger"
	"alert-dispatch/pkg/metrics"
	"alert-dispatch/pkg/notification"
	"alert-dispatch/pkg/restart"
)

const version = "1.0.0"

func main() {
	os.Exit(serve())
}

// serve returns the process exit code so deferred cleanup runs before exit
func serve() int {
	// CLI flags
	var (
		configPath = flag.String("config", "", "Path to config file")
		envFile    = flag.String("env", ".env", "Path to .env file")
		showVer    = flag.Bool("version", false, "Show version")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("alert-dispatch server version %s\n", version)
		return 0
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	log.Info("initializing database", zap.String("path", cfg.Server.DBPath))
	st, err := store.NewStore(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()

	if err := syncAlertDefinitions(st, cfg.Alerts, log); err != nil {
		return err
	}

	// Initialize WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	client := httpclient.New(cfg.HTTP)
	m := metrics.New()

	var mailer notification.Mailer
	if d := notification.NewDialer(cfg.SMTP); d != nil {
		mailer = d
	}
	resolver := notification.NewResolver(notification.Options{
		Client:      client,
		Mailer:      mailer,
		MailFrom:    cfg.SMTP.From,
		DingTalkURL: cfg.Robots.DingTalkURL,
		WeComURL:    cfg.Robots.WeComURL,
		LarkURL:     cfg.Robots.LarkURL,
	})
	if missing := resolver.Missing(); len(missing) > 0 {
		log.Warn("alert types without handler", zap.Stringers("types", missing))
	}

	dispatcher := alert.NewDispatcher(alert.DispatcherOptions{
		Resolver: resolver,
		Logger:   log,
		Observer: m,
	})
	service := alert.NewService(alert.ServiceOptions{
		Store:      st,
		Dispatcher: dispatcher,
		Publisher:  hub,
		Logger:     log,
	})

	stateFilter, err := cfg.StateFilter()
	if err != nil {
		return err
	}
	tr := tracker.New(tracker.Options{
		Store:       st,
		Alerter:     service,
		Broadcaster: hub,
		Filter:      stateFilter,
		Observer:    m,
		Logger:      log,
	})

	// Initialize watcher
	if cfg.Watcher.Enabled {
		sched := scheduler.NewScheduler(scheduler.Options{
			Store:   st,
			Tracker: tr,
			Client:  client,
			Spec:    cfg.Watcher.Cron,
			Logger:  log,
		})
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer sched.Stop()
	}

	var restarter handlers.Restarter
	if cfg.Restart.BaseURL != "" {
		restarter = restart.NewRestarter(client, restart.Config{
			BaseURL:       cfg.Restart.BaseURL,
			Authorization: cfg.Restart.Authorization,
			TeamID:        cfg.Restart.TeamID,
		})
	}

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(log), middleware.CORS())

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
		})

		handlers.NewAlertHandler(st, dispatcher).Register(v1)
		handlers.NewApplicationHandler(st, tr, restarter).Register(v1)

		// WebSocket for real-time updates
		v1.GET("/ws", hub.ServeWS)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("health", "/api/v1/health"),
			zap.String("websocket", "/api/v1/ws"),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// syncAlertDefinitions upserts the alert configurations declared in the
// config file, matched by name
func syncAlertDefinitions(st *store.Store, defs []config.AlertDefinition, log *zap.Logger) error {
	for _, def := range defs {
		params, err := def.Params()
		if err != nil {
			return err
		}
		model, err := params.Model()
		if err != nil {
			return err
		}

		existing, err := st.GetAlertConfigByName(def.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			err = st.CreateAlertConfig(model)
		case err == nil:
			model.ID = existing.ID
			model.UserID = existing.UserID
			model.CreatedAt = existing.CreatedAt
			err = st.UpdateAlertConfig(model)
		}
		if err != nil {
			return fmt.Errorf("failed to sync alert %s: %w", def.Name, err)
		}
		log.Info("alert definition synced", zap.String("alert_name", def.Name), zap.Uint("alert_id", model.ID))
	}
	return nil
}
