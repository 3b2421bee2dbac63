package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

const conversationColumns = `id, customer_id, subject, last_message_at, created_at`

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.CustomerID, &c.Subject, &c.LastMessageAt, &c.CreatedAt)
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg domain.Message) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_username, sender_type, body, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, msg.ID, msg.ConversationID, msg.SenderUsername, msg.SenderType, msg.Body, msg.CreatedAt)
	return err
}

func (s *Store) CreateConversation(ctx context.Context, conversation domain.Conversation, first domain.Message) (*domain.Conversation, error) {
	if conversation.ID == "" || first.ID == "" || first.Body == "" {
		return nil, store.ErrInvalidInput
	}
	if first.CreatedAt.IsZero() {
		first.CreatedAt = time.Now().UTC()
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = first.CreatedAt
	}
	first.ConversationID = conversation.ID
	conversation.LastMessageAt = first.CreatedAt

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureExists(ctx, tx, "customers", conversation.CustomerID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, customer_id, subject, last_message_at, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, conversation.ID, conversation.CustomerID, conversation.Subject, conversation.LastMessageAt, conversation.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		return insertMessage(ctx, tx, first)
	})
	if err != nil {
		return nil, err
	}
	created := conversation
	return &created, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, customerID string, limit int) ([]domain.Conversation, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE ($1 = '' OR customer_id = $1)
		ORDER BY last_message_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Conversation, 0, limit)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) AddMessage(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	if msg.ID == "" || msg.Body == "" {
		return nil, store.ErrInvalidInput
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureExists(ctx, tx, "conversations", msg.ConversationID); err != nil {
			return err
		}
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE conversations SET last_message_at = GREATEST(last_message_at, $2) WHERE id = $1
		`, msg.ConversationID, msg.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	created := msg
	return &created, nil
}

// ListMessages returns the newest limit messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit < 1 {
		limit = 100
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_username, sender_type, body, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Message, 0, limit)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderUsername, &msg.SenderType, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		result = append(result, msg)
	}
	return result, rows.Err()
}
