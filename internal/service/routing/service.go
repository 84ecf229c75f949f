package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

// Config controls the model-assisted classifier.
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Service classifies requests with the language model and falls back to the
// keyword router whenever the model is off or its verdict is unusable.
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	router       *category.Router
	historyLimit int
}

// NewService builds the classifier chain. chatModel may be nil, in which case
// only keyword routing is used.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config, router *category.Router) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}
	if router == nil {
		router = category.NewRouter(nil)
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		router:       router,
		historyLimit: historyLimit,
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile routing classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the model-assisted classifier is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Router exposes the keyword router backing the fallback path.
func (s *Service) Router() *category.Router {
	return s.router
}

// Classify routes message to one or more service categories.
func (s *Service) Classify(ctx context.Context, history []chat.Message, message string) category.Result {
	keyword := s.router.Classify(message)
	if !s.Enabled() {
		return keyword
	}

	input := map[string]any{
		"history": formatHistory(history, s.historyLimit),
		"message": strings.TrimSpace(message),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		log.Printf("[routing] classifier invoke failed, use keywords: %v", err)
		return keyword
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return keyword
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[routing] classifier output parse failed, use keywords: %v", err)
		return keyword
	}

	result, ok := payload.toResult(keyword)
	if !ok {
		log.Printf("[routing] classifier returned unknown labels %v, use keywords", payload.Categories)
		return keyword
	}
	return result
}

type classifierPayload struct {
	Categories []string `json:"categories"`
	Urgency    string   `json:"urgency"`
	Confidence int      `json:"confidence"`
	Reason     string   `json:"reason"`
}

// parseClassifierOutput extracts the outermost JSON object from the reply.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// toResult validates the labels and orders them canonically. The keyword
// verdict can raise urgency but never lower it.
func (p *classifierPayload) toResult(keyword category.Result) (category.Result, bool) {
	picked := make(map[facility.Category]bool, len(p.Categories))
	general := false
	for _, raw := range p.Categories {
		c, ok := facility.ParseCategory(raw)
		if !ok {
			return category.Result{}, false
		}
		if c == facility.General {
			general = true
			continue
		}
		picked[c] = true
	}

	var categories []facility.Category
	for _, c := range facility.Categories() {
		if picked[c] {
			categories = append(categories, c)
		}
	}
	if len(categories) == 0 {
		if !general {
			return category.Result{}, false
		}
		categories = []facility.Category{facility.General}
	}

	urgency := category.Medium
	if strings.EqualFold(strings.TrimSpace(p.Urgency), string(category.Critical)) || keyword.Urgency == category.Critical {
		urgency = category.Critical
	}

	confidence := p.Confidence
	if confidence <= 0 {
		confidence = 60
	}
	if confidence > 100 {
		confidence = 100
	}

	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		reason = "model classification"
	}

	return category.Result{
		Categories:   categories,
		Matches:      keyword.Matches,
		MultiService: len(categories) > 1,
		Urgency:      urgency,
		Confidence:   confidence,
		Reason:       reason,
	}, true
}

func formatHistory(messages []chat.Message, limit int) string {
	if len(messages) == 0 {
		return "(no earlier messages)"
	}
	if limit < 1 {
		limit = 1
	}
	start := len(messages) - limit
	if start < 0 {
		start = 0
	}

	var builder strings.Builder
	for _, msg := range messages[start:] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "Caller"
		if msg.Type == chat.TypeAssistant || msg.Type == chat.TypeSystem {
			role = "Operator"
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(role)
		builder.WriteString(": ")
		builder.WriteString(content)
	}
	if builder.Len() == 0 {
		return "(no earlier messages)"
	}
	return builder.String()
}

const classifierSystemPrompt = "You triage calls for an emergency help line in Karachi. Decide which services the caller needs: medical (ambulance, hospital), fire (fire brigade, rescue, gas leaks, collapses) and police (crime, violence, traffic accidents). Pick every service that applies. Use general only when none applies.\nReply with a single JSON object and nothing else, with the fields: categories (array of medical/fire/police/general), urgency (critical or medium), confidence (integer 0-100), reason (one short sentence)."

const classifierUserPrompt = "Recent conversation:\n{history}\n\nLatest caller message:\n{message}\n\nReturn the JSON now."
