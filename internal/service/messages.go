package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/xid"
)

func (s *Service) StartConversation(ctx context.Context, req domain.ConversationCreateRequest) (domain.Conversation, error) {
	actor, err := s.authorize(ctx, domain.PermMessage)
	if err != nil {
		return domain.Conversation{}, err
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if actor.Role == domain.RoleCustomer {
		if actor.CustomerID == "" {
			return domain.Conversation{}, fmt.Errorf("%w: login is not linked to a customer", domain.ErrForbidden)
		}
		customerID = actor.CustomerID
	}
	if customerID == "" {
		return domain.Conversation{}, invalidInput("customer_id is required")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return domain.Conversation{}, invalidInput("subject is required")
	}
	body, err := messageBody(req.Body)
	if err != nil {
		return domain.Conversation{}, err
	}

	now := s.now()
	conversationID := xid.New("conv")
	conversation, err := s.repo.CreateConversation(ctx, domain.Conversation{
		ID:         conversationID,
		CustomerID: customerID,
		Subject:    subject,
		CreatedAt:  now,
	}, domain.Message{
		ID:             xid.New("msg"),
		ConversationID: conversationID,
		SenderUsername: actor.Username,
		SenderType:     senderType(actor),
		Body:           body,
		CreatedAt:      now,
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	s.logAudit(ctx, "conversation_start", "conversation", conversation.ID, "customer="+conversation.CustomerID)
	return *conversation, nil
}

// ListConversations returns the most recently active threads first.
func (s *Service) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	actor, err := s.authorize(ctx, domain.PermMessage)
	if err != nil {
		return nil, err
	}
	customerID := ""
	if actor.Role == domain.RoleCustomer {
		customerID = actor.CustomerID
		if customerID == "" {
			return []domain.Conversation{}, nil
		}
	}
	return s.repo.ListConversations(ctx, customerID, clampLimit(limit))
}

func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if _, err := s.conversationFor(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, strings.TrimSpace(conversationID), clampLimit(limit))
}

func (s *Service) SendMessage(ctx context.Context, conversationID string, req domain.MessageCreateRequest) (domain.Message, error) {
	actor, err := s.conversationFor(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	body, err := messageBody(req.Body)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := s.repo.AddMessage(ctx, domain.Message{
		ID:             xid.New("msg"),
		ConversationID: strings.TrimSpace(conversationID),
		SenderUsername: actor.Username,
		SenderType:     senderType(actor),
		Body:           body,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return domain.Message{}, err
	}
	return *msg, nil
}

// conversationFor checks the caller may read and write the thread.
func (s *Service) conversationFor(ctx context.Context, conversationID string) (domain.Actor, error) {
	actor, err := s.authorize(ctx, domain.PermMessage)
	if err != nil {
		return domain.Actor{}, err
	}
	conversation, err := s.repo.GetConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role == domain.RoleCustomer && conversation.CustomerID != actor.CustomerID {
		return domain.Actor{}, fmt.Errorf("%w: customers may only read their own conversations", domain.ErrForbidden)
	}
	return actor, nil
}

func messageBody(raw string) (string, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return "", invalidInput("message body is required")
	}
	if utf8.RuneCountInString(body) > domain.MaxMessageLength {
		return "", invalidInput("message body exceeds %d characters", domain.MaxMessageLength)
	}
	return body, nil
}

func senderType(actor domain.Actor) string {
	if actor.Role == domain.RoleCustomer {
		return domain.SenderCustomer
	}
	return domain.SenderStaff
}
