package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/next-dentist/next-dentist-sub003/internal/config"
	"github.com/next-dentist/next-dentist-sub003/internal/core/contracts"
	"github.com/next-dentist/next-dentist-sub003/internal/core/domain"
	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

var tracer = otel.Tracer("manager-service")

type IManagerService interface {
	// HandleConnect marks the user online, announces it, and replays the
	// current presence snapshot to the new connection.
	HandleConnect(ctx context.Context, c contracts.Client) error
	// HandleDisconnect marks the user offline once their last connection
	// is gone and announces it.
	HandleDisconnect(ctx context.Context, c contracts.Client) error
	// HandleHeartbeat refreshes the presence TTL until ctx is cancelled.
	HandleHeartbeat(ctx context.Context, userID string) error
	// HandleEvent routes one inbound envelope from a connection.
	HandleEvent(ctx context.Context, c contracts.Client, env protocol.Envelope) error
}

type ManagerService struct {
	registry  contracts.Registry
	presStore contracts.PresenceStore
	message   IMessageService
	presCfg   config.PresenceConfig
	log       *slog.Logger
}

func NewManagerService(
	log *slog.Logger,
	registry contracts.Registry,
	presStore contracts.PresenceStore,
	message IMessageService,
	presCfg config.PresenceConfig,
) *ManagerService {
	return &ManagerService{
		log:       log,
		registry:  registry,
		presStore: presStore,
		message:   message,
		presCfg:   presCfg,
	}
}

func (m *ManagerService) HandleConnect(ctx context.Context, c contracts.Client) error {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
	))
	defer span.End()
	if c.UserID() == "" {
		err := domain.ErrInvalidUserID
		span.RecordError(err)
		return err
	}
	if err := m.presStore.SetOnline(ctx, c.UserID(), m.presCfg.TTL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "presence update failed")
		m.log.ErrorContext(ctx, "manager - handle connect - set online failed", "user_id", c.UserID(), "err", err)
		return err
	}
	if env, err := protocol.NewEnvelope(protocol.EventUserOnline, protocol.PresencePayload{UserID: c.UserID()}); err == nil {
		m.registry.BroadcastAll(ctx, env)
	}
	// The client treats presence as a cache rebuilt after every connect;
	// push the current snapshot so it has something to rebuild from.
	online, err := m.presStore.OnlineUsers(ctx)
	if err != nil {
		span.RecordError(err)
		m.log.ErrorContext(ctx, "manager - handle connect - presence snapshot failed", "user_id", c.UserID(), "err", err)
		return nil
	}
	for _, userID := range online {
		if userID == c.UserID() {
			continue
		}
		if env, err := protocol.NewEnvelope(protocol.EventUserOnline, protocol.PresencePayload{UserID: userID}); err == nil {
			_ = c.Send(ctx, env)
		}
	}
	span.SetStatus(codes.Ok, "connected")
	return nil
}

func (m *ManagerService) HandleDisconnect(ctx context.Context, c contracts.Client) error {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleDisconnect", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
	))
	defer span.End()
	if m.registry.ConnCount(c.UserID()) > 0 {
		// another device is still online; no presence change
		return nil
	}
	lastSeen := time.Now()
	if err := m.presStore.SetOffline(ctx, c.UserID(), lastSeen); err != nil {
		span.RecordError(err)
		m.log.ErrorContext(ctx, "manager - handle disconnect - set offline failed", "user_id", c.UserID(), "err", err)
		return err
	}
	if env, err := protocol.NewEnvelope(protocol.EventUserOffline, protocol.PresencePayload{
		UserID:   c.UserID(),
		LastSeen: &lastSeen,
	}); err == nil {
		m.registry.BroadcastAll(ctx, env)
	}
	return nil
}

func (m *ManagerService) HandleHeartbeat(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("invalid heartbeat parameters")
	}
	ticker := time.NewTicker(m.presCfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("manager - handle heartbeat - stopped", "user_id", userID)
			return nil
		case <-ticker.C:
			_, span := tracer.Start(ctx, "Heartbeat.SetOnline")
			if err := m.presStore.SetOnline(ctx, userID, m.presCfg.TTL); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "presence refresh failed")
				m.log.ErrorContext(ctx, "manager - handle heartbeat - refresh failed", "user_id", userID, "err", err)
			}
			span.End()
		}
	}
}

func (m *ManagerService) HandleEvent(ctx context.Context, c contracts.Client, env protocol.Envelope) error {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleEvent", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("event", env.Event),
	))
	defer span.End()

	var err error
	switch env.Event {
	case protocol.EventSendMessage:
		var p protocol.SendMessagePayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			err = m.message.AcceptMessage(ctx, c.UserID(), c.ConnID(), p)
		}

	case protocol.EventJoinConversation:
		var p protocol.ConversationPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			if p.ConversationID == "" {
				err = domain.ErrInvalidConversationID
				break
			}
			m.registry.Join(c, p.ConversationID)
		}

	case protocol.EventLeaveConversation:
		var p protocol.ConversationPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			m.registry.Leave(c, p.ConversationID)
		}

	case protocol.EventTypingStart, protocol.EventTypingStop:
		var p protocol.ConversationPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			out, envErr := protocol.NewEnvelope(protocol.EventUserTyping, protocol.UserTypingPayload{
				ConversationID: p.ConversationID,
				UserID:         c.UserID(),
				IsTyping:       env.Event == protocol.EventTypingStart,
			})
			if envErr == nil {
				m.registry.BroadcastToRoom(ctx, p.ConversationID, out, c.ConnID())
			}
		}

	case protocol.EventMarkMessagesRead:
		var p protocol.MarkMessagesReadPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			err = m.message.MarkRead(ctx, c.UserID(), p)
		}

	case protocol.EventEditMessage:
		var p protocol.EditMessagePayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			err = m.message.EditMessage(ctx, c.UserID(), p)
		}

	case protocol.EventDeleteMessage:
		var p protocol.DeleteMessagePayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			err = m.message.DeleteMessage(ctx, c.UserID(), p)
		}

	default:
		err = errors.New("unknown event " + env.Event)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event handling failed")
		m.log.ErrorContext(ctx, "manager - handle event - failed", "event", env.Event, "user_id", c.UserID(), "err", err)
		if out, envErr := protocol.NewEnvelope(protocol.EventError, protocol.ErrorPayload{Message: err.Error()}); envErr == nil {
			_ = c.Send(ctx, out)
		}
	}
	return err
}
