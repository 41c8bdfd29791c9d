package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/next-dentist/next-dentist-sub003/internal/core/domain"
	"github.com/next-dentist/next-dentist-sub003/pkg/protocol"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

/*
	CREATE TABLE chat_messages (
		id              UUID PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations (id),
		sender_id       TEXT NOT NULL,
		receiver_id     TEXT,
		content         TEXT NOT NULL,
		message_type    TEXT NOT NULL DEFAULT 'TEXT',
		status          TEXT NOT NULL DEFAULT 'SENT',
		reply_to_id     UUID,
		attachments     JSONB,
		created_at      TIMESTAMPTZ NOT NULL,
		read_at         TIMESTAMPTZ,
		deleted_at      TIMESTAMPTZ
	);
	CREATE INDEX idx_chat_messages_conv ON chat_messages (conversation_id, created_at);
*/

func (r *MessageRepo) Save(ctx context.Context, msg *protocol.Message) error {
	if msg.ConversationID == "" {
		return domain.ErrInvalidConversationID
	}
	var attachments any
	if len(msg.Attachments) > 0 {
		raw, err := json.Marshal(msg.Attachments)
		if err != nil {
			return err
		}
		attachments = raw
	}
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
        INSERT INTO chat_messages (
            id, conversation_id, sender_id, receiver_id, content,
            message_type, status, reply_to_id, attachments, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
    `,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.MessageType,
		msg.Status,
		msg.ReplyToID,
		attachments,
		msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) GetMessageByID(ctx context.Context, msgID string) (*protocol.Message, error) {
	exec := GetExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, COALESCE(receiver_id, ''),
		       content, message_type, status, COALESCE(reply_to_id::text, ''),
		       attachments, created_at, read_at
		FROM chat_messages
		WHERE id = $1 AND deleted_at IS NULL
	`, msgID)
	return scanMessage(row)
}

func (r *MessageRepo) UpdateContent(ctx context.Context, msgID, content string) (*protocol.Message, error) {
	exec := GetExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `
		UPDATE chat_messages
		SET content = $2
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id, conversation_id, sender_id, COALESCE(receiver_id, ''),
		          content, message_type, status, COALESCE(reply_to_id::text, ''),
		          attachments, created_at, read_at
	`, msgID, content)
	return scanMessage(row)
}

func (r *MessageRepo) SoftDelete(ctx context.Context, msgID string) (string, error) {
	exec := GetExecutor(ctx, r.db)
	var convID string
	err := exec.QueryRowContext(ctx, `
		UPDATE chat_messages
		SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING conversation_id
	`, msgID).Scan(&convID)
	if err == sql.ErrNoRows {
		return "", domain.ErrMessageNotFound
	}
	return convID, err
}

func (r *MessageRepo) MarkRead(ctx context.Context, convID, userID string, msgIDs []string) ([]string, error) {
	if convID == "" {
		return nil, domain.ErrInvalidConversationID
	}
	exec := GetExecutor(ctx, r.db)
	if len(msgIDs) == 0 {
		// No explicit ids: mark everything addressed to the reader.
		rows, err := exec.QueryContext(ctx, `
			UPDATE chat_messages
			SET status = $3, read_at = now()
			WHERE conversation_id = $1 AND receiver_id = $2
			  AND status <> $3 AND deleted_at IS NULL
			RETURNING id
		`, convID, userID, protocol.StatusRead)
		if err != nil {
			return nil, err
		}
		return collectIDs(rows)
	}
	var read []string
	for _, id := range msgIDs {
		var got string
		err := exec.QueryRowContext(ctx, `
			UPDATE chat_messages
			SET status = $4, read_at = now()
			WHERE id = $1 AND conversation_id = $2 AND receiver_id = $3
			  AND status <> $4 AND deleted_at IS NULL
			RETURNING id
		`, id, convID, userID, protocol.StatusRead).Scan(&got)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		read = append(read, got)
	}
	return read, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*protocol.Message, error) {
	var (
		m           protocol.Message
		attachments []byte
		readAt      sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.MessageType,
		&m.Status,
		&m.ReplyToID,
		&attachments,
		&m.CreatedAt,
		&readAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, err
		}
	}
	if readAt.Valid {
		t := readAt.Time.UTC()
		m.ReadAt = &t
	}
	return &m, nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
