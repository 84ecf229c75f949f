// Package gemini adapts Google's Gemini API to the eino ChatModel interface so
// it can be dropped into the same chains as the Ark model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash-latest"

var (
	ErrNoUserMessage    = errors.New("last message must come from the user")
	ErrToolsUnsupported = errors.New("gemini adapter does not support tool calling")
)

// Config configures the Gemini chat model.
type Config struct {
	APIKey      string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
}

// ChatModel implements model.ChatModel on top of genai.
type ChatModel struct {
	client *genai.Client
	cfg    Config
}

var _ model.ChatModel = (*ChatModel)(nil)

// NewChatModel dials the Gemini API with an API key.
func NewChatModel(ctx context.Context, cfg Config) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &ChatModel{client: client, cfg: cfg}, nil
}

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Generate sends the conversation and returns the full reply.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	cs, last, err := m.startChat(input, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini SendMessage failed: %w", err)
	}

	msg := responseMessage(resp)
	if msg.Content == "" {
		return nil, errors.New("gemini returned an empty response")
	}
	return msg, nil
}

// Stream sends the conversation and relays reply chunks as they arrive.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	cs, last, err := m.startChat(input, opts...)
	if err != nil {
		return nil, err
	}

	it := cs.SendMessageStream(ctx, last.Parts...)
	sr, sw := schema.Pipe[*schema.Message](8)

	go func() {
		defer sw.Close()
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				sw.Send(nil, fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			chunk := responseMessage(resp)
			if chunk.Content == "" && chunk.ResponseMeta == nil {
				continue
			}
			if closed := sw.Send(chunk, nil); closed {
				return
			}
		}
	}()

	return sr, nil
}

// BindTools is part of model.ChatModel; tool calling is not offered.
func (m *ChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) == 0 {
		return nil
	}
	return ErrToolsUnsupported
}

func (m *ChatModel) startChat(input []*schema.Message, opts ...model.Option) (*genai.ChatSession, *genai.Content, error) {
	system, history, last, err := toContents(input)
	if err != nil {
		return nil, nil, err
	}

	options := model.GetCommonOptions(&model.Options{
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
		MaxTokens:   m.cfg.MaxTokens,
	}, opts...)

	gm := m.client.GenerativeModel(m.cfg.Model)
	if options.Model != nil && *options.Model != "" {
		gm = m.client.GenerativeModel(*options.Model)
	}
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if options.Temperature != nil {
		gm.SetTemperature(*options.Temperature)
	}
	if options.TopP != nil {
		gm.SetTopP(*options.TopP)
	}
	if options.MaxTokens != nil {
		gm.SetMaxOutputTokens(int32(*options.MaxTokens))
	}

	cs := gm.StartChat()
	cs.History = history
	return cs, last, nil
}

// toContents splits eino messages into a system instruction, prior turns and
// the final user turn. Gemini names the assistant role "model".
func toContents(input []*schema.Message) (string, []*genai.Content, *genai.Content, error) {
	var (
		system  []string
		history []*genai.Content
	)
	for _, msg := range input {
		if msg == nil {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case schema.System:
			if content != "" {
				system = append(system, content)
			}
		case schema.User:
			history = appendTurn(history, "user", msg.Content)
		case schema.Assistant:
			if content == "" {
				continue
			}
			history = appendTurn(history, "model", msg.Content)
		default:
			log.Printf("[gemini] dropping unsupported message role %q", msg.Role)
		}
	}

	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", nil, nil, ErrNoUserMessage
	}
	last := history[len(history)-1]
	return strings.Join(system, "\n\n"), history[:len(history)-1], last, nil
}

// appendTurn adds text to history, folding it into the previous turn when the
// role repeats. Gemini rejects consecutive turns from the same role.
func appendTurn(history []*genai.Content, role, text string) []*genai.Content {
	if n := len(history); n > 0 && history[n-1].Role == role {
		history[n-1].Parts = append(history[n-1].Parts, genai.Text(text))
		return history
	}
	return append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}})
}

func responseMessage(resp *genai.GenerateContentResponse) *schema.Message {
	msg := &schema.Message{Role: schema.Assistant}
	if resp == nil {
		return msg
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		msg.Content = b.String()
	}

	if resp.UsageMetadata != nil {
		msg.ResponseMeta = &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			},
		}
	}
	return msg
}
