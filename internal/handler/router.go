package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/clanker/backend/internal/handler/chat"
	"github.com/zhouzirui/clanker/backend/internal/handler/persona"
	"github.com/zhouzirui/clanker/backend/internal/handler/speech"
	"github.com/zhouzirui/clanker/backend/internal/handler/world"
	personaModel "github.com/zhouzirui/clanker/backend/internal/model/persona"
	worldsvc "github.com/zhouzirui/clanker/backend/internal/service/world"
	"github.com/zhouzirui/clanker/backend/pkg/utils"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Engine        chat.Engine
	Hub           speech.Hub
	Personas      personaModel.Store
	ActivePersona string
	// World is optional; without it the /world routes are not mounted.
	World *worldsvc.Sim
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		// Register persona routes
		persona.New(deps.Personas, deps.ActivePersona).RegisterRoutes(api)

		// Register chat event routes
		chat.New(deps.Engine).RegisterRoutes(api)

		// Listener websocket and SSE
		speech.NewWebSocketHandler(deps.Hub, logger).RegisterWebSocketRoutes(api)

		if deps.World != nil {
			world.New(deps.World).RegisterRoutes(api)
		}
	})

	return r
}

// requestLogger logs each request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
