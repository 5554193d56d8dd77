// Package app assembles the dispatch console: stores, vault, relay
// controller, dispatcher, campaign scheduler, and the HTTP API server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spoofsent/spoofsent/internal/api"
	"github.com/spoofsent/spoofsent/internal/audit"
	"github.com/spoofsent/spoofsent/internal/campaign"
	"github.com/spoofsent/spoofsent/internal/config"
	"github.com/spoofsent/spoofsent/internal/delivery"
	"github.com/spoofsent/spoofsent/internal/metrics"
	"github.com/spoofsent/spoofsent/internal/posture"
	"github.com/spoofsent/spoofsent/internal/relay"
	"github.com/spoofsent/spoofsent/internal/store"
	"github.com/spoofsent/spoofsent/internal/vault"
)

// App is the main application
type App struct {
	config    *config.Config
	apiServer *api.Server
	scheduler *campaign.Scheduler
	journal   *campaign.Journal
	logger    *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	m := metrics.New()
	metrics.SetGlobal(m)

	drafts, err := store.NewFolderStore[store.Draft](cfg.DraftsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create draft store: %w", err)
	}
	campaigns, err := store.NewFolderStore[store.Campaign](cfg.CampaignsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign store: %w", err)
	}
	templates, err := store.NewFolderStore[store.Template](cfg.TemplatesDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create template store: %w", err)
	}
	if err := store.SeedTemplates(templates); err != nil {
		return nil, fmt.Errorf("failed to seed template catalog: %w", err)
	}
	mailboxes, err := store.NewMailboxStore(cfg.MailboxFile())
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox store: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadsDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	v, err := vault.Open(cfg.Storage.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential vault: %w", err)
	}

	hub := audit.NewHub()
	log, err := audit.NewLog(cfg.Storage.LogFile, hub)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	relayCtl := relay.NewPostfix(cfg.Relay.MainCf, cfg.Relay.Service, cfg.Relay.MailCommand, logger)
	dispatcher := delivery.New(
		mailboxes,
		v,
		relayCtl,
		cfg.Server.Hostname,
		cfg.UploadsDir(),
		cfg.SMTP.ConnectTimeout,
		logger,
	)

	runner := campaign.NewRunner(drafts, dispatcher, log, logger)
	journal, err := campaign.OpenJournal(cfg.Storage.RunsDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	scheduler := campaign.NewScheduler(runner, journal, logger)

	evaluator := posture.NewEvaluator(nil, logger.With("component", "posture"))

	apiServer := api.NewServer(api.Deps{
		Config:    cfg,
		Drafts:    drafts,
		Campaigns: campaigns,
		Templates: templates,
		Mailboxes: mailboxes,
		Vault:     v,
		Log:       log,
		Hub:       hub,
		Evaluator: evaluator,
		Sender:    dispatcher,
		Scheduler: scheduler,
		Journal:   journal,
		Metrics:   m,
	}, logger)

	return &App{
		config:    cfg,
		apiServer: apiServer,
		scheduler: scheduler,
		journal:   journal,
		logger:    logger,
	}, nil
}

// Run starts the application and blocks until a shutdown signal or a server
// error.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting spoofsent",
		"addr", a.config.Server.ListenAddr,
		"data_dir", a.config.Storage.DataDir,
		"privileged", os.Geteuid() == 0,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	// Let in-flight campaign runs finish so the journal stays consistent.
	a.scheduler.Drain()

	if err := a.journal.Close(); err != nil {
		a.logger.Error("journal close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
