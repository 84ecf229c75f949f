package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/geo"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	chatService "github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/dispatch"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/location"
	"github.com/zhouzirui/emergency-hub/backend/pkg/utils"
)

// Handler 聊天与会话的HTTP处理器
type Handler struct {
	chatSvc     *chatService.Service
	coordinator *dispatch.Coordinator
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, coordinator *dispatch.Coordinator) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		coordinator: coordinator,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/chat/confirm", h.handleConfirm)
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}/history", h.handleClearHistory)
	r.Post("/sessions/{sessionID}/location", h.handleSetLocation)
}

// Response 是一次聊天回复的扁平化视图
type Response struct {
	chat.Message
	Categories   []facility.Category                    `json:"categories"`
	Urgency      category.Urgency                       `json:"urgency,omitempty"`
	MultiService bool                                   `json:"multi_service"`
	Location     *chat.Location                         `json:"location,omitempty"`
	Facilities   map[facility.Category][]facility.Nearby `json:"facilities,omitempty"`
}

// NewResponse 将调度结果转换为响应体
func NewResponse(reply dispatch.Reply) Response {
	msg := reply.Message
	msg.SessionID = reply.SessionID
	return Response{
		Message:      msg,
		Categories:   reply.Route.Categories,
		Urgency:      reply.Route.Urgency,
		MultiService: reply.Route.MultiService,
		Location:     reply.Location,
		Facilities:   reply.Facilities,
	}
}

// handleChat 处理一条用户消息并返回助手回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.coordinator.Handle(r.Context(), dispatch.Request{
		SessionID: payload.SessionID,
		Message:   payload.Message,
		ClientIP:  utils.ClientIP(r),
	})
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, NewResponse(reply))
}

// handleConfirm 处理用户对派遣提示的确认或取消
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
		Confirmed bool   `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	reply, err := h.coordinator.Confirm(r.Context(), payload.SessionID, payload.Confirmed)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewResponse(reply))
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

type sessionView struct {
	chat.Session
	Messages []chat.Message `json:"messages"`
}

// handleGetSession 返回会话信息与历史消息
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	session.MessageCount = len(messages)
	utils.RespondJSON(w, http.StatusOK, sessionView{Session: session, Messages: messages})
}

// handleClearHistory 清空会话，返回新的会话ID
func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.ClearSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"previous_session_id": sessionID,
		"session":             session,
	})
}

// handleSetLocation 设置会话位置：坐标优先，否则按地名解析
func (h *Handler) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Address   string   `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var loc chat.Location
	switch {
	case payload.Latitude != nil && payload.Longitude != nil:
		if !geo.ValidLatitude(*payload.Latitude) {
			utils.RespondError(w, http.StatusBadRequest, facility.ErrInvalidLatitude.Error())
			return
		}
		if !geo.ValidLongitude(*payload.Longitude) {
			utils.RespondError(w, http.StatusBadRequest, facility.ErrInvalidLongitude.Error())
			return
		}
		loc = chat.Location{
			Latitude:  *payload.Latitude,
			Longitude: *payload.Longitude,
			Address:   strings.TrimSpace(payload.Address),
			Source:    location.SourceGPS,
		}
	case strings.TrimSpace(payload.Address) != "":
		place, ok := location.Geocode(payload.Address)
		if !ok {
			utils.RespondError(w, http.StatusBadRequest, "unknown area: "+payload.Address)
			return
		}
		loc = chat.Location{
			Latitude:  place.Latitude,
			Longitude: place.Longitude,
			Address:   place.Address,
			Source:    place.Source,
		}
	default:
		utils.RespondError(w, http.StatusBadRequest, "latitude and longitude or address is required")
		return
	}

	session, err := h.chatSvc.SetLocation(r.Context(), sessionID, loc)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// StatusFor 将业务错误映射为HTTP状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrTranscriptFull):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, facility.ErrInvalidLatitude),
		errors.Is(err, facility.ErrInvalidLongitude),
		errors.Is(err, facility.ErrInvalidRadius),
		errors.Is(err, facility.ErrUnknownCategory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
