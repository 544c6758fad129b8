package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/clanker/backend/internal/model/persona"
	"github.com/zhouzirui/clanker/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
	active   string
}

// New 创建persona处理器，active 为当前使用的人设
func New(personas persona.Store, active string) *Handler {
	return &Handler{
		personas: personas,
		active:   active,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"active":   h.active,
		"personas": h.personas.List(),
	})
}
