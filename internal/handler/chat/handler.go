package chat

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/clanker/backend/internal/model/chat"
	"github.com/zhouzirui/clanker/backend/pkg/utils"
)

// Engine 聊天处理器依赖的引擎能力
type Engine interface {
	HandleEvent(userID, text string)
	Sessions(ctx context.Context, withTurns bool) ([]chat.SessionView, error)
}

// Handler 聊天事件的HTTP处理器
type Handler struct {
	engine Engine
}

// New 创建聊天处理器
func New(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/events", h.handleEvent)
	r.Get("/sessions", h.handleListSessions)
}

// handleEvent 接收一条玩家聊天，交给主循环处理
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
		Text   string `json:"text"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	h.engine.HandleEvent(userID, payload.Text)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleListSessions 列出当前会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	withTurns := false
	if raw := r.URL.Query().Get("turns"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "turns must be a boolean")
			return
		}
		withTurns = v
	}

	sessions, err := h.engine.Sessions(r.Context(), withTurns)
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}
