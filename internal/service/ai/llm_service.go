package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/emergency-hub/backend/internal/config"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/agent"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
)

// HistoryLimit caps how many prior turns are replayed to the model.
const HistoryLimit = 10

// Service encapsulates AI-powered chat functionality
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
	prompts   *AgentPromptManager
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance from configuration
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel builds the chat chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		prompts:   NewAgentPromptManager(),
		chain:     runnable,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// GenerateResponse asks the agent for a complete reply. history must not
// contain userMessage itself.
func (s *Service) GenerateResponse(ctx context.Context, sessionID string, a *agent.Agent, briefing *Briefing, history []chat.Message, userMessage string) (*schema.Message, error) {
	input := s.buildChainInput(a, briefing, history, userMessage)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated response for session=%s, agent=%s, length=%d", sessionID, a.ID, len(response.Content))
	return response, nil
}

// StreamResponse streams AI response chunks via the configured chain.
func (s *Service) StreamResponse(ctx context.Context, a *agent.Agent, briefing *Briefing, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	input := s.buildChainInput(a, briefing, history, userMessage)

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}

	return stream, nil
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

func (s *Service) buildChainInput(a *agent.Agent, briefing *Briefing, history []chat.Message, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(a, briefing),
		"history": buildHistoryMessages(history),
		"query":   userMessage,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > HistoryLimit {
		startIdx = len(messages) - HistoryLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Type {
		case chat.TypeUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.TypeAssistant, chat.TypeSystem:
			// system 类型是多服务汇总与派遣确认回复，对模型而言同样是助手发言
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
