// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

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

	"codeberg.org/oliverandrich/authnotify/internal/config"
	"codeberg.org/oliverandrich/authnotify/internal/database"
	"codeberg.org/oliverandrich/authnotify/internal/events"
	"codeberg.org/oliverandrich/authnotify/internal/handlers"
	"codeberg.org/oliverandrich/authnotify/internal/i18n"
	"codeberg.org/oliverandrich/authnotify/internal/notifier"
	"codeberg.org/oliverandrich/authnotify/internal/repository"
	"codeberg.org/oliverandrich/authnotify/internal/services/auth"
	"codeberg.org/oliverandrich/authnotify/internal/services/email"
	"codeberg.org/oliverandrich/authnotify/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// App is the wired application.
type App struct {
	Echo  *echo.Echo
	Queue *email.Queue
	db    *sqlx.DB
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	sender, err := email.NewSMTPSender(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to configure SMTP: %w", err)
	}

	slog.Info("SMTP sender configured", "host", sender.Host())

	app, err := New(cfg, sender)
	if err != nil {
		return err
	}

	return app.startWithGracefulShutdown(ctx, cfg)
}

// New opens the database and wires repository, event bus, notifier, mail
// queue and HTTP routes. The mail queue is started.
func New(cfg *config.Config, sender email.Sender) (*App, error) {
	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Repository
	repo := repository.New(db)

	// Sessions
	sessions, err := session.NewManager(&cfg.Session, cfg.SecureCookies())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	// Mail
	renderer, err := email.NewRenderer(cfg.Server.BaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	queue := email.NewQueue(sender, renderer, cfg.Mail.QueueSize)
	queue.Start()

	// Events
	bus := events.NewBus()
	notifier.New(sessions, cfg, queue).Subscribe(bus)
	for _, kind := range events.Kinds {
		slog.Debug("event listeners", "kind", kind.String(), "count", bus.ListenerCount(kind))
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg, sessions)
	setupRoutes(e, repo, auth.NewService(repo, bus), sessions)

	return &App{Echo: e, Queue: queue, db: db}, nil
}

// Close stops the mail queue, delivering what is pending, and closes the database.
func (a *App) Close(ctx context.Context) error {
	slog.Info("stopping mail queue", "pending", a.Queue.Len())
	queueErr := a.Queue.Stop(ctx)
	dbErr := a.db.Close()
	return errors.Join(queueErr, dbErr)
}

func setupRoutes(e *echo.Echo, repo *repository.Repository, svc *auth.Service, sessions *session.Manager) {
	h := handlers.New(repo)
	a := handlers.NewAuth(svc, sessions)

	e.GET("/health", h.Health)

	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.GET("/activate", a.Activate)
	g.POST("/resend", a.Resend)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)
	g.POST("/reset", a.RequestReset)
	g.GET("/reset/confirm", a.CheckReset)
	g.POST("/reset/confirm", a.ConfirmReset)
	g.GET("/me", a.Me)
}

func (a *App) startWithGracefulShutdown(ctx context.Context, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("shutting down server", "reason", ctx.Err())
	case serveErr = <-errChan:
		slog.Error("server error", "error", serveErr)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	if err := a.Close(shutdownCtx); err != nil {
		slog.Error("failed to release resources", "error", err)
	}

	slog.Info("server stopped")
	return serveErr
}
