package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todoagent/internal/agent"
	"todoagent/internal/service/conversation"
	"todoagent/pkg/logger"
)

// Chatter runs one chat turn; *agent.Agent implements it.
type Chatter interface {
	Chat(ctx context.Context, req agent.ChatRequest) agent.Response
}

type ChatHandler struct {
	agent         Chatter
	conversations *conversation.Service
	historyLimit  int
	logger        *zap.Logger
}

func NewChatHandler(a Chatter, conversations *conversation.Service, historyLimit int, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{agent: a, conversations: conversations, historyLimit: historyLimit, logger: logger}
}

type chatRequest struct {
	Message        string       `json:"message" binding:"required,max=4000"`
	History        []agent.Turn `json:"history" binding:"omitempty,max=200,dive"`
	ConversationID int64        `json:"conversation_id" binding:"omitempty,gte=0"`
}

type chatResponse struct {
	Response       string                 `json:"response"`
	ToolCalls      []agent.ToolCallRecord `json:"tool_calls"`
	ConversationID int64                  `json:"conversation_id"`
}

// Chat POST /api/chat
// Without an explicit history the stored conversation supplies it; every
// turn is appended to the conversation either way.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "Chat", err)
		return
	}
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger).With(zap.String("user_id", userID))

	conv, err := h.conversations.Open(ctx, userID, req.ConversationID, req.Message)
	if err != nil {
		respondError(c, log, "Chat", err)
		return
	}

	history := req.History
	if history == nil {
		stored, err := h.conversations.History(ctx, conv.ID, h.historyLimit)
		if err != nil {
			respondError(c, log, "Chat", err)
			return
		}
		history = make([]agent.Turn, 0, len(stored))
		for _, m := range stored {
			history = append(history, agent.Turn{Role: string(m.Role), Content: m.Content})
		}
	}

	resp := h.agent.Chat(ctx, agent.ChatRequest{UserID: userID, Message: req.Message, History: history})
	if resp.Err != nil {
		log.Warn("Chat: answered with apology", zap.Error(resp.Err))
	}

	// the reply is already computed; a storage hiccup here only loses history
	if err := h.conversations.RecordTurn(ctx, conv.ID, req.Message, resp.Response); err != nil {
		log.Error("Chat: failed to persist turn", zap.Int64("conversation_id", conv.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, chatResponse{
		Response:       resp.Response,
		ToolCalls:      resp.ToolCalls,
		ConversationID: conv.ID,
	})
}

// ListConversations GET /api/conversations
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	convs, err := h.conversations.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "ListConversations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// ListMessages GET /api/conversations/:id/messages
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.conversations.Messages(c.Request.Context(), userID, id, 0)
	if err != nil {
		respondError(c, h.logger, "ListMessages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.conversations.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, "DeleteConversation", err)
		return
	}
	c.Status(http.StatusNoContent)
}
