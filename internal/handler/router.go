package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	agentHandler "github.com/zhouzirui/emergency-hub/backend/internal/handler/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/handler/chat"
	facilityHandler "github.com/zhouzirui/emergency-hub/backend/internal/handler/facility"
	"github.com/zhouzirui/emergency-hub/backend/internal/handler/route"
	"github.com/zhouzirui/emergency-hub/backend/internal/handler/stream"
	"github.com/zhouzirui/emergency-hub/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/emergency-hub/backend/internal/middleware"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	chatService "github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/dispatch"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/routing"
	"github.com/zhouzirui/emergency-hub/backend/pkg/utils"
)

// Deps 汇总路由所需的服务
type Deps struct {
	Chat           *chatService.Service
	Coordinator    *dispatch.Coordinator
	Routing        *routing.Service
	Facilities     facility.Store
	Agents         agent.Store
	DefaultRadius  float64
	AllowedOrigins []string
	AIEnabled      bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	started := time.Now()

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":          "ok",
				"ai_enabled":      deps.AIEnabled,
				"router_llm":      deps.Routing.Enabled(),
				"active_sessions": deps.Chat.Len(),
				"facilities":      deps.Facilities.Counts(),
				"uptime_seconds":  int(time.Since(started).Seconds()),
			})
		})

		agentHandler.New(deps.Agents).RegisterRoutes(api)
		chat.New(deps.Chat, deps.Coordinator).RegisterRoutes(api)
		facilityHandler.New(deps.Facilities, deps.DefaultRadius).RegisterRoutes(api)
		route.New(deps.Routing).RegisterRoutes(api)
		stream.New(deps.Coordinator).RegisterRoutes(api)
		ws.New(deps.Chat, deps.Coordinator).RegisterRoutes(api)
	})

	return r
}
