package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"todoagent/internal/model"
)

type ConversationRepository struct {
	db     DBInterface
	logger *zap.Logger
}

func NewConversationRepository(db DBInterface, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, logger: logger}
}

func (r *ConversationRepository) CreateConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO conversations (user_id, title) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		c.UserID, c.Title,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert conversation",
			zap.Error(err),
			zap.String("user_id", c.UserID),
		)
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	r.logger.Debug("Conversation created",
		zap.Int64("conversation_id", c.ID),
		zap.String("user_id", c.UserID),
	)
	return c, nil
}

func (r *ConversationRepository) GetConversation(ctx context.Context, userID string, id int64) (*model.Conversation, error) {
	var c model.Conversation
	err := pgxscan.Get(ctx, r.db, &c,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return &c, nil
}

func (r *ConversationRepository) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	var out []*model.Conversation
	err := pgxscan.Select(ctx, r.db, &out,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations
		 WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning conversations: %w", err)
	}
	return out, nil
}

func (r *ConversationRepository) DeleteConversation(ctx context.Context, userID string, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return nil
}

// AppendMessages stores msgs in order and touches the conversation.
func (r *ConversationRepository) AppendMessages(ctx context.Context, conversationID int64, msgs ...*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		// one row per statement so created_at follows insertion order
		for _, m := range msgs {
			m.ConversationID = conversationID
			if err := tx.QueryRow(ctx,
				`INSERT INTO messages (conversation_id, role, content) VALUES ($1, $2, $3) RETURNING id, created_at`,
				conversationID, string(m.Role), m.Content,
			).Scan(&m.ID, &m.CreatedAt); err != nil {
				return fmt.Errorf("inserting message: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
			return fmt.Errorf("touching conversation: %w", err)
		}
		return nil
	})
}

// ListMessages returns the newest limit messages in creation order; limit <= 0 returns all.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID int64, limit int) ([]*model.Message, error) {
	inner := psql.Select("id", "conversation_id", "role", "content", "created_at").
		From("messages").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		inner = inner.Limit(uint64(limit))
	}

	query, args, err := psql.Select("*").
		FromSelect(inner, "recent").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building message query: %w", err)
	}

	var msgs []*model.Message
	if err := pgxscan.Select(ctx, r.db, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("scanning messages: %w", err)
	}
	return msgs, nil
}
