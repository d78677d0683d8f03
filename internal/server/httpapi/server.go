// Package httpapi exposes the authority over JSON HTTP: authentication,
// entity writes, the change feed, lock leases, the websocket relay and
// attachment presigning.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/attachments"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/config"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/locks"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/users"
)

// EventSubscriber hands out per-tenant relay event streams. Satisfied by
// the relay hub.
type EventSubscriber interface {
	Subscribe(tenantID string) (<-chan model.RelayEvent, func())
}

type Server struct {
	cfg         *config.Config
	users       *users.Service
	entities    *entities.Service
	locks       *locks.Service
	attachments *attachments.Service
	relay       EventSubscriber
	logger      logging.Logger

	http *http.Server
}

func NewServer(cfg *config.Config, userSvc *users.Service, entitySvc *entities.Service,
	lockSvc *locks.Service, attachmentSvc *attachments.Service, relay EventSubscriber,
	logger logging.Logger) *Server {

	s := &Server{
		cfg:         cfg,
		users:       userSvc,
		entities:    entitySvc,
		locks:       lockSvc,
		attachments: attachmentSvc,
		relay:       relay,
		logger:      logger.With("module", "httpapi"),
	}

	s.http = &http.Server{
		Addr:         cfg.EndpointAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)

	mux.HandleFunc("POST /api/entities/write", s.requireAuth(s.handleWrite))
	mux.HandleFunc("GET /api/changes", s.requireAuth(s.handleChanges))

	mux.HandleFunc("POST /api/locks/acquire", s.requireAuth(s.handleLockAcquire))
	mux.HandleFunc("POST /api/locks/release", s.requireAuth(s.handleLockRelease))

	mux.HandleFunc("GET /api/sync/events", s.requireAuth(s.handleEvents))

	mux.HandleFunc("POST /api/attachments/presign-put", s.requireAuth(s.handlePresignPut))
	mux.HandleFunc("POST /api/attachments/presign-get", s.requireAuth(s.handlePresignGet))

	return mux
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info(context.Background(), "starting http server", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
