package chat

import "time"

// MessageType 标识消息的来源。
type MessageType string

const (
	TypeUser      MessageType = "user"
	TypeAssistant MessageType = "assistant"
	TypeSystem    MessageType = "system"
)

// Message is one immutable turn of a conversation.
type Message struct {
	ID                string      `json:"message_id"`
	SessionID         string      `json:"session_id"`
	Type              MessageType `json:"type"`
	Content           string      `json:"content"`
	NeedsConfirmation bool        `json:"needs_confirmation"`
	CreatedAt         time.Time   `json:"timestamp"`
}
