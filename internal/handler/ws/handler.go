package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/emergency-hub/backend/internal/geo"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/emergency-hub/backend/internal/service/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/dispatch"
	"github.com/zhouzirui/emergency-hub/backend/internal/service/location"
	"github.com/zhouzirui/emergency-hub/backend/pkg/utils"
)

const (
	defaultReadTimeout = 60 * time.Second
	pingInterval       = 54 * time.Second
)

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc     *chatservice.Service
	coordinator *dispatch.Coordinator
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, coordinator *dispatch.Coordinator) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		coordinator: coordinator,
		readTimeout: defaultReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// LocationMessage 位置消息，坐标优先于地名
type LocationMessage struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

// ConfirmMessage 派遣确认消息
type ConfirmMessage struct {
	Confirmed bool `json:"confirmed"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connectionState struct {
	sessionID string
	clientIP  string
}

// handleWebSocket 处理WebSocket连接。未知会话会被替换为新会话并通过 connected 消息告知。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, created, err := h.chatSvc.GetOrCreate(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	state := &connectionState{sessionID: session.ID, clientIP: utils.ClientIP(r)}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", state.sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	writes := make(chan outgoingMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, writes)
	}()

	send := func(msgType string, data any) {
		select {
		case writes <- outgoingMessage{Type: msgType, SessionID: state.sessionID, Data: data, Timestamp: time.Now().Unix()}:
		case <-writerDone:
		case <-ctx.Done():
		}
	}

	send("connected", map[string]any{"created": created})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		if msg.SessionID != "" && msg.SessionID != state.sessionID {
			send("error", map[string]string{"message": "session mismatch"})
			conn.SetReadDeadline(time.Now().Add(h.readTimeout))
			continue
		}
		h.handleMessage(ctx, state, &msg, send)
		// 处理期间不会读取pong，模型回复较慢时需要重新计时
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, state *connectionState, msg *inboundMessage, send func(string, any)) {
	switch msg.Type {
	case "text":
		h.handleTextMessage(ctx, state, msg.Data, send)
	case "location":
		h.handleLocationMessage(ctx, state, msg.Data, send)
	case "confirm":
		h.handleConfirmMessage(ctx, state, msg.Data, send)
	default:
		send("error", map[string]string{"message": "unsupported message type: " + msg.Type})
	}
}

func (h *Handler) handleTextMessage(ctx context.Context, state *connectionState, raw json.RawMessage, send func(string, any)) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		send("error", map[string]string{"message": "invalid text payload"})
		return
	}
	if strings.TrimSpace(text.Text) == "" {
		return
	}

	plan, err := h.coordinator.Plan(ctx, dispatch.Request{SessionID: state.sessionID, Message: text.Text, ClientIP: state.clientIP})
	if err != nil {
		send("error", map[string]string{"message": err.Error()})
		return
	}
	if plan.Session.ID != state.sessionID {
		// 会话已过期，改用新的会话继续
		state.sessionID = plan.Session.ID
		send("session", map[string]any{"session_id": plan.Session.ID})
	}

	send("route", plan.Route)

	content, err := relay(ctx, h.coordinator, plan, send)
	if err != nil {
		log.Printf("[websocket] relay failed session=%s, using fallback: %v", state.sessionID, err)
		content = h.coordinator.Fallback(plan)
	}

	reply, err := h.coordinator.Complete(ctx, plan, content)
	if err != nil {
		send("error", map[string]string{"message": err.Error()})
		return
	}
	send("reply", reply.Message)
}

func relay(ctx context.Context, c *dispatch.Coordinator, plan *dispatch.Plan, send func(string, any)) (string, error) {
	stream := c.Stream(ctx, plan)
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		send("delta", map[string]string{"text": chunk.Content})
	}
}

func (h *Handler) handleLocationMessage(ctx context.Context, state *connectionState, raw json.RawMessage, send func(string, any)) {
	var payload LocationMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		send("error", map[string]string{"message": "invalid location payload"})
		return
	}

	var loc chat.Location
	switch {
	case payload.Latitude != nil && payload.Longitude != nil:
		if !geo.ValidLatitude(*payload.Latitude) || !geo.ValidLongitude(*payload.Longitude) {
			send("error", map[string]string{"message": "coordinates out of range"})
			return
		}
		loc = chat.Location{Latitude: *payload.Latitude, Longitude: *payload.Longitude, Address: payload.Address, Source: location.SourceGPS}
	default:
		place, ok := location.Geocode(payload.Address)
		if !ok {
			send("error", map[string]string{"message": "unknown area"})
			return
		}
		loc = chat.Location{Latitude: place.Latitude, Longitude: place.Longitude, Address: place.Address, Source: place.Source}
	}

	session, err := h.chatSvc.SetLocation(ctx, state.sessionID, loc)
	if err != nil {
		send("error", map[string]string{"message": err.Error()})
		return
	}
	send("location", session.Location)
}

func (h *Handler) handleConfirmMessage(ctx context.Context, state *connectionState, raw json.RawMessage, send func(string, any)) {
	var payload ConfirmMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		send("error", map[string]string{"message": "invalid confirm payload"})
		return
	}

	reply, err := h.coordinator.Confirm(ctx, state.sessionID, payload.Confirmed)
	if err != nil {
		send("error", map[string]string{"message": err.Error()})
		return
	}
	send("reply", reply.Message)
}

// writeLoop 串行写出消息并定期发送ping
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, writes <-chan outgoingMessage) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-writes:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[websocket] write failed: %v", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
