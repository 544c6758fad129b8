package world

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	model "github.com/zhouzirui/clanker/backend/internal/model/world"
	worldsvc "github.com/zhouzirui/clanker/backend/internal/service/world"
	"github.com/zhouzirui/clanker/backend/pkg/utils"
)

// Handler 模拟世界的HTTP处理器，用于驱动玩家位置与实体生成
type Handler struct {
	sim *worldsvc.Sim
}

// New 创建世界处理器
func New(sim *worldsvc.Sim) *Handler {
	return &Handler{sim: sim}
}

// RegisterRoutes 注册世界相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/world", func(w chi.Router) {
		w.Get("/", h.handleSnapshot)
		w.Put("/users/{userID}", h.handlePutUser)
		w.Delete("/users/{userID}", h.handleDeleteUser)
		w.Post("/actors", h.handleSpawnActor)
		w.Delete("/actors/{actorID}", h.handleRemoveActor)
	})
}

// handleSnapshot 返回实体与掉落物
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"actors": h.sim.Actors(),
		"drops":  h.sim.Drops(),
	})
}

// handlePutUser 更新玩家位置
func (h *Handler) handlePutUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	var pos model.Vec3
	if err := utils.DecodeJSON(w, r, &pos); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.sim.SetUserPosition(userID, pos)
	utils.RespondJSON(w, http.StatusOK, map[string]any{"userId": userID, "position": pos})
}

// handleDeleteUser 玩家下线
func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	h.sim.RemoveUser(strings.TrimSpace(chi.URLParam(r, "userID")))
	w.WriteHeader(http.StatusNoContent)
}

// handleSpawnActor 在指定位置生成实体
func (h *Handler) handleSpawnActor(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Position model.Vec3 `json:"position"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := h.sim.Spawn(payload.Position)
	utils.RespondJSON(w, http.StatusCreated, map[string]any{"id": id, "position": payload.Position})
}

// handleRemoveActor 杀死实体，despawn=true 时直接移除
func (h *Handler) handleRemoveActor(w http.ResponseWriter, r *http.Request) {
	id := model.ActorID(chi.URLParam(r, "actorID"))
	var ok bool
	if r.URL.Query().Get("despawn") == "true" {
		ok = h.sim.Despawn(id)
	} else {
		ok = h.sim.Kill(id)
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "actor not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
