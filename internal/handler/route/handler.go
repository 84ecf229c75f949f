package route

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emergency-hub/backend/internal/service/routing"
	"github.com/zhouzirui/emergency-hub/backend/pkg/utils"
)

// Handler 暴露分类路由，便于前端和运维调试词表
type Handler struct {
	routing *routing.Service
}

// New 创建路由分类处理器
func New(routingSvc *routing.Service) *Handler {
	return &Handler{routing: routingSvc}
}

// RegisterRoutes 注册分类相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/route", h.handleClassify)
	r.Get("/route/terms", h.handleTerms)
}

// handleClassify 对一段文本进行分类
func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	result := h.routing.Classify(r.Context(), nil, payload.Message)
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleTerms 返回当前生效的关键词表
func (h *Handler) handleTerms(w http.ResponseWriter, r *http.Request) {
	terms := h.routing.Router().Terms()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"categories": terms.Categories,
		"exclusions": terms.Exclusions,
		"urgency":    terms.Urgency,
	})
}
