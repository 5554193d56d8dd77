// Package api exposes the dispatch console over HTTP: send and campaign
// operations, draft/template/mailbox CRUD, the domain posture check, and the
// log feed with its live event stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spoofsent/spoofsent/internal/audit"
	"github.com/spoofsent/spoofsent/internal/campaign"
	"github.com/spoofsent/spoofsent/internal/config"
	"github.com/spoofsent/spoofsent/internal/delivery"
	"github.com/spoofsent/spoofsent/internal/metrics"
	"github.com/spoofsent/spoofsent/internal/posture"
	"github.com/spoofsent/spoofsent/internal/store"
	"github.com/spoofsent/spoofsent/internal/vault"
)

// Sender delivers a single draft.
type Sender interface {
	Send(ctx context.Context, draft *store.Draft) delivery.Result
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Config    *config.Config
	Drafts    *store.FolderStore[store.Draft]
	Campaigns *store.FolderStore[store.Campaign]
	Templates *store.FolderStore[store.Template]
	Mailboxes *store.MailboxStore
	Vault     *vault.Vault
	Log       *audit.Log
	Hub       *audit.Hub
	Evaluator *posture.Evaluator
	Sender    Sender
	Scheduler *campaign.Scheduler
	Journal   *campaign.Journal
	Metrics   *metrics.Metrics
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/domain-check", s.handleDomainCheck)
		r.Post("/send", s.handleSend)

		r.Get("/drafts", s.handleListDrafts)
		r.Post("/drafts", s.handleSaveDraft)
		r.Get("/drafts/{id}", s.handleGetDraft)
		r.Delete("/drafts/{id}", s.handleDeleteDraft)

		r.Get("/campaigns", s.handleListCampaigns)
		r.Post("/campaigns", s.handleSaveCampaign)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Delete("/campaigns/{id}", s.handleDeleteCampaign)
		r.Post("/campaigns/{id}/launch", s.handleLaunchCampaign)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleSaveTemplate)
		r.Get("/templates/{id}", s.handleGetTemplate)
		r.Put("/templates/{id}", s.handleUpdateTemplate)
		r.Delete("/templates/{id}", s.handleDeleteTemplate)

		r.Get("/mailboxes", s.handleListMailboxes)
		r.Post("/mailboxes", s.handleAddMailbox)
		r.Delete("/mailboxes/{id}", s.handleDeleteMailbox)

		r.Get("/log", s.handleLog)
		r.Get("/events", s.handleEvents)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	if s.deps.Metrics != nil && s.deps.Config.Metrics.Enabled {
		s.router.Get(s.deps.Config.Metrics.Path, promhttp.HandlerFor(
			s.deps.Metrics.Registry(),
			promhttp.HandlerOpts{},
		).ServeHTTP)
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	// No WriteTimeout: the event stream holds its response open.
	s.httpServer = &http.Server{
		Addr:        s.deps.Config.Server.ListenAddr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.deps.Config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
