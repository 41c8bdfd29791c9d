package postgres

import (
	"context"
	"database/sql"

	"github.com/next-dentist/next-dentist-sub003/internal/core/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

/*
	CREATE TABLE conversations (
		id         TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE conversation_participants (
		conversation_id TEXT NOT NULL REFERENCES conversations (id),
		user_id         TEXT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE conversation_unread (
		conversation_id TEXT NOT NULL REFERENCES conversations (id),
		user_id         TEXT NOT NULL,
		count           INT NOT NULL DEFAULT 0,
		PRIMARY KEY (conversation_id, user_id)
	);
*/

func (r *ConversationRepo) GetConversationByID(ctx context.Context, convID string) (*domain.Conversation, error) {
	if convID == "" {
		return nil, domain.ErrInvalidConversationID
	}
	conversation := &domain.Conversation{ID: convID}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx,
		`SELECT created_at FROM conversations WHERE id = $1`,
		convID,
	).Scan(&conversation.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY user_id`,
		convID,
	)
	if err != nil {
		return nil, err
	}
	if conversation.Participants, err = collectIDs(rows); err != nil {
		return nil, err
	}
	return conversation, nil
}

// EnsureConversation creates the conversation row and its participant rows
// if they do not exist yet. Conversations are created lazily on the first
// message rather than through a separate endpoint.
func (r *ConversationRepo) EnsureConversation(ctx context.Context, convID string, participants []string) error {
	if convID == "" {
		return domain.ErrInvalidConversationID
	}
	exec := GetExecutor(ctx, r.db)
	if _, err := exec.ExecContext(ctx,
		`INSERT INTO conversations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		convID,
	); err != nil {
		return err
	}
	for _, userID := range participants {
		if userID == "" {
			continue
		}
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (conversation_id, user_id) DO NOTHING
		`, convID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ConversationRepo) IncrementUnread(ctx context.Context, convID, userID string) (int, error) {
	exec := GetExecutor(ctx, r.db)
	var count int
	err := exec.QueryRowContext(ctx, `
		INSERT INTO conversation_unread (conversation_id, user_id, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET count = conversation_unread.count + 1
		RETURNING count
	`, convID, userID).Scan(&count)
	return count, err
}

func (r *ConversationRepo) ResetUnread(ctx context.Context, convID, userID string) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		UPDATE conversation_unread SET count = 0
		WHERE conversation_id = $1 AND user_id = $2
	`, convID, userID)
	return err
}
