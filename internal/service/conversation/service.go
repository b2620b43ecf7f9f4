// Package conversation persists chat turns and serves the history window fed
// back to the model.
package conversation

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"todoagent/internal/model"
)

const titleMaxRunes = 60

type Repository interface {
	CreateConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
	GetConversation(ctx context.Context, userID string, id int64) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	DeleteConversation(ctx context.Context, userID string, id int64) error
	AppendMessages(ctx context.Context, conversationID int64, msgs ...*model.Message) error
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]*model.Message, error)
}

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// Open returns the user's conversation id, or starts a new one titled after
// firstMessage when id is 0.
func (s *Service) Open(ctx context.Context, userID string, id int64, firstMessage string) (*model.Conversation, error) {
	if id != 0 {
		return s.repo.GetConversation(ctx, userID, id)
	}
	conv, err := s.repo.CreateConversation(ctx, &model.Conversation{
		UserID: userID,
		Title:  titleFrom(firstMessage),
	})
	if err != nil {
		s.logger.Error("Failed to create conversation", zap.Error(err), zap.String("user_id", userID))
		return nil, err
	}
	s.logger.Debug("Conversation started",
		zap.String("user_id", userID),
		zap.Int64("conversation_id", conv.ID),
	)
	return conv, nil
}

// History returns at most limit messages, oldest first.
func (s *Service) History(ctx context.Context, conversationID int64, limit int) ([]*model.Message, error) {
	return s.repo.ListMessages(ctx, conversationID, limit)
}

// RecordTurn stores the user message and the reply in creation order.
func (s *Service) RecordTurn(ctx context.Context, conversationID int64, userMessage, reply string) error {
	err := s.repo.AppendMessages(ctx, conversationID,
		&model.Message{ConversationID: conversationID, Role: model.RoleUser, Content: userMessage},
		&model.Message{ConversationID: conversationID, Role: model.RoleAssistant, Content: reply},
	)
	if err != nil {
		s.logger.Error("Failed to record chat turn",
			zap.Error(err),
			zap.Int64("conversation_id", conversationID),
		)
	}
	return err
}

func (s *Service) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	return convs, nil
}

// Messages lists a conversation after checking the user owns it. limit <= 0
// returns everything.
func (s *Service) Messages(ctx context.Context, userID string, id int64, limit int) ([]*model.Message, error) {
	if _, err := s.repo.GetConversation(ctx, userID, id); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	if err := s.repo.DeleteConversation(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("Conversation deleted", zap.String("user_id", userID), zap.Int64("conversation_id", id))
	return nil
}

func titleFrom(msg string) string {
	title := strings.Join(strings.Fields(msg), " ")
	if title == "" {
		return "New conversation"
	}
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	r := []rune(title)
	return strings.TrimSpace(string(r[:titleMaxRunes-1])) + "…"
}
