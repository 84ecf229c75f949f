package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/dispatch"
	"github.com/zhouzirui/emergency-hub/backend/pkg/utils"
)

// Handler manages streaming replies via Server-Sent Events
type Handler struct {
	coordinator *dispatch.Coordinator
}

// New creates a new stream handler
func New(coordinator *dispatch.Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterRoutes 注册流式接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
	Data      any    `json:"data,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if strings.TrimSpace(userMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, dispatch.Request{
		SessionID: sessionID,
		Message:   userMessage,
		ClientIP:  utils.ClientIP(r),
	}); err != nil {
		log.Printf("[stream] error handling request: %v", err)
	}
}

// HandleStreamRequest plans the reply, streams it and stores the final text.
// Once headers are sent all failures are reported as error events.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, req dispatch.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	plan, err := h.coordinator.Plan(ctx, req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, chatService.ErrTranscriptFull):
			status = http.StatusConflict
		case errors.Is(err, chatService.ErrEmptyMessage):
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return err
	}

	utils.SetupSSEHeaders(w)
	sessionID := plan.Session.ID

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		Data: map[string]any{
			"categories":      plan.Route.Categories,
			"urgency":         plan.Route.Urgency,
			"multi_service":   plan.Route.MultiService,
			"session_created": plan.SessionCreated,
		},
	})

	content, err := h.relay(ctx, w, flusher, sessionID, plan)
	if err != nil {
		log.Printf("[stream] relay failed for session=%s, using fallback: %v", sessionID, err)
		content = h.coordinator.Fallback(plan)
	}

	reply, err := h.coordinator.Complete(ctx, plan, content)
	if err != nil {
		h.sendSSEError(w, flusher, "failed to store reply")
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   reply.Message.Content,
		Data:      reply.Message,
	})
	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed response for session=%s", sessionID)
	return nil
}

func (h *Handler) relay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, plan *dispatch.Plan) (string, error) {
	stream := h.coordinator.Stream(ctx, plan)
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		b.WriteString(chunk.Content)
		if err := h.sendSSE(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   chunk.Content,
		}); err != nil {
			// 客户端已断开，保留已生成的内容
			return b.String(), nil
		}
	}
	return b.String(), nil
}

// sendSSE sends a Server-Sent Event
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) error {
	if err := utils.WriteSSE(w, flusher, response); err != nil {
		log.Printf("[stream] failed to write %s event: %v", response.Event, err)
		return err
	}
	return nil
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event: "error",
		Error: errorMsg,
	})
}
