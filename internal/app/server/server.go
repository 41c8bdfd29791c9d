package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/next-dentist/next-dentist-sub003/internal/app/registry"
	"github.com/next-dentist/next-dentist-sub003/internal/app/server/handlers"
	"github.com/next-dentist/next-dentist-sub003/internal/config"
	"github.com/next-dentist/next-dentist-sub003/internal/core/services"
	"github.com/next-dentist/next-dentist-sub003/pkg/middleware"
)

type Server struct {
	mux       *http.ServeMux
	srv       *http.Server
	log       *slog.Logger
	cfg       config.ServiceConfig
	wsHandler *handlers.WSHandler
	tokenSvc  *services.TokenService
}

func NewServer(
	log *slog.Logger,
	cfg config.ServiceConfig,
	tokenSvc *services.TokenService,
	managerSvc services.IManagerService,
	hub *registry.Registry,
) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		log:       log,
		cfg:       cfg,
		wsHandler: handlers.NewWSHandler(log, tokenSvc, hub, managerSvc),
		tokenSvc:  tokenSvc,
	}
	s.routes()
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	logging := middleware.RequestLogger(s.log)
	tracing := middleware.TracerMiddleware(s.cfg.Name)

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// The read/write timeouts above stop applying once the connection is
	// hijacked for the upgrade.
	s.mux.Handle("/ws", tracing(logging(auth(http.HandlerFunc(s.wsHandler.Handler)))))
}

func (s *Server) Start() error {
	s.log.Info("server starting", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
