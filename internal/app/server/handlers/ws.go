package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/next-dentist/next-dentist-sub003/internal/app/registry"
	"github.com/next-dentist/next-dentist-sub003/internal/app/server/ws"
	"github.com/next-dentist/next-dentist-sub003/internal/core/services"
	"github.com/next-dentist/next-dentist-sub003/internal/platform/logger"
	"github.com/next-dentist/next-dentist-sub003/pkg/middleware"
	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

type WSHandler struct {
	log      *slog.Logger
	tokenSvc *services.TokenService
	hub      *registry.Registry
	manager  services.IManagerService
}

func NewWSHandler(
	log *slog.Logger,
	tokenSvc *services.TokenService,
	hub *registry.Registry,
	manager services.IManagerService,
) *WSHandler {
	return &WSHandler{
		log:      log,
		tokenSvc: tokenSvc,
		hub:      hub,
		manager:  manager,
	}
}

func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing user_id")
		http.Error(w, "Unauthorized: User ID missing", http.StatusUnauthorized)
		return
	}
	// Clients also send user_id as a query param; a mismatch with the
	// token subject means a stale or forged URL.
	if q := r.URL.Query().Get("user_id"); q != "" && q != userID {
		log.ErrorContext(r.Context(), "ws handler - user_id mismatch", "token_sub", userID, "query", q)
		http.Error(w, "Forbidden: user mismatch", http.StatusForbidden)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	// The session outlives the upgrade request's context.
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", "err", err)
		cancel()
		return
	}
	conn.SetCloseHandler(func(code int, text string) error {
		log.Info("ws handler - ws closed", "user_id", userID, "code", code)
		cancel()
		return nil
	})
	socket := ws.NewWebSocket(ctx, conn)

	connID := uuid.NewString()
	client := ws.NewClient(ctx, socket, userID, connID)
	defer client.Close()
	defer cancel()

	if env, err := protocol.NewEnvelope(protocol.EventConnectionConfirmed, protocol.ConnectionConfirmedPayload{
		UserID:   userID,
		UserName: s.displayName(r),
	}); err == nil {
		_ = client.Send(ctx, env)
	}

	s.hub.Register(client)
	defer s.manager.HandleDisconnect(sessionCtx, client)
	defer s.hub.Unregister(client)
	if err := s.manager.HandleConnect(ctx, client); err != nil {
		log.ErrorContext(r.Context(), "ws handler - handle connect failed", "user_id", userID, "err", err)
		return
	}
	log.InfoContext(r.Context(), "ws handler - connection established", "user_id", userID, "conn_id", connID)

	go s.manager.HandleHeartbeat(ctx, userID)

	// Inbound frames are handled in order on this goroutine: clients rely
	// on their join_conversation frames taking effect before any frames
	// they send afterwards.
	socket.ReadLoop(func(data []byte) {
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn("ws handler - bad frame", "user_id", userID, "err", err)
			return
		}
		_ = s.manager.HandleEvent(ctx, client, env)
	})
}

func (s *WSHandler) displayName(r *http.Request) string {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		if parts := strings.Split(r.Header.Get("Authorization"), " "); len(parts) == 2 {
			tokenStr = parts[1]
		}
	}
	return s.tokenSvc.DisplayName(tokenStr)
}
