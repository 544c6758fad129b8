package speech

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/pkg/utils"
)

// Hub 监听端连接的推送中心
type Hub interface {
	Attach(ctx context.Context, userID string, conn *websocket.Conn)
	Subscribe(userID string) (<-chan []byte, func())
	Done() <-chan struct{}
}

// WebSocketHandler 监听端的 WebSocket / SSE 处理器
type WebSocketHandler struct {
	hub      Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub Hub, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("ws"),
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{userID}", h.handleWebSocket)
	r.Get("/stream/{userID}", h.handleStream)
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.String("user", userID), zap.Error(err))
		return
	}

	// 连接生命周期不跟随请求 ctx，由读写循环自行结束
	h.hub.Attach(context.WithoutCancel(r.Context()), userID, conn)
}

// handleStream 以 SSE 推送同样的帧，供不支持 WebSocket 的客户端使用
func (h *WebSocketHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userID is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	frames, cancel := h.hub.Subscribe(userID)
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": "stream established"}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.hub.Done():
			return
		case data := <-frames:
			if err := utils.WriteSSE(w, flusher, "frame", data); err != nil {
				h.logger.Debug("sse write failed", zap.String("user", userID), zap.Error(err))
				return
			}
		}
	}
}
