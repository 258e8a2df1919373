// Package conversation 会话历史查询接口。
package conversation

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
	"github.com/zhouzirui/yuanfang/backend/pkg/utils"
)

type store interface {
	ListConversations(ctx context.Context, userID string) ([]convmodel.Conversation, error)
	ListTurns(ctx context.Context, conversationID string) ([]convmodel.Turn, error)
	CloseConversation(ctx context.Context, conversationID string) error
}

// Handler 提供会话与轮次的只读查询，以及显式关闭会话的入口。
type Handler struct {
	store store
}

// New 创建会话查询处理器。
func New(store store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册会话路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users/{userID}/conversations", h.listConversations)
	r.Get("/conversations/{conversationID}/turns", h.listTurns)
	r.Post("/conversations/{conversationID}/close", h.closeConversation)
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	conversations, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []convmodel.Conversation{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *Handler) listTurns(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	turns, err := h.store.ListTurns(r.Context(), conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list turns")
		return
	}
	if turns == nil {
		turns = []convmodel.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (h *Handler) closeConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := h.store.CloseConversation(r.Context(), conversationID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to close conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
