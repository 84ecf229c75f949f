package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/emergency-hub/backend/internal/llm/gemini"
)

const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	// Provider 为空时根据已配置的凭证自动选择。
	Provider           string
	APIKey             string
	AccessKey          string
	SecretKey          string
	Model              string
	BaseURL            string
	Region             string
	GeminiAPIKey       string
	GeminiModel        string
	Temperature        *float64
	TopP               *float64
	MaxTokens          *int
	StreamResponse     bool
	RouterLLMEnabled   bool
	RouterHistoryLimit int
}

func (c AIConfig) arkReady() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

func (c AIConfig) geminiReady() bool {
	return c.GeminiAPIKey != ""
}

// ResolvedProvider 返回实际使用的模型提供方，未配置任何凭证时为空。
func (c AIConfig) ResolvedProvider() string {
	switch strings.ToLower(c.Provider) {
	case ProviderArk:
		if c.arkReady() {
			return ProviderArk
		}
		return ""
	case ProviderGemini:
		if c.geminiReady() {
			return ProviderGemini
		}
		return ""
	}
	if c.geminiReady() {
		return ProviderGemini
	}
	if c.arkReady() {
		return ProviderArk
	}
	return ""
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.ResolvedProvider() != ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	switch c.ResolvedProvider() {
	case ProviderGemini:
		cm, err := gemini.NewChatModel(ctx, gemini.Config{
			APIKey:      c.GeminiAPIKey,
			Model:       c.GeminiModel,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil
	case ProviderArk:
		cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
		if err != nil {
			return nil, err
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("模型凭证缺失：请提供 GEMINI_API_KEY，或 ARK_API_KEY/AK+SK 与 ARK_MODEL")
	}
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("LLM_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	routerEnabled, err := parseBoolEnv("AI_ROUTER_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	routerHistory := 6
	if historyOverride, err := parseOptionalIntEnv("AI_ROUTER_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if historyOverride != nil {
		if *historyOverride < 1 {
			routerHistory = 1
		} else {
			routerHistory = *historyOverride
		}
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	switch provider {
	case "", ProviderArk, ProviderGemini:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q: want ark or gemini", provider)
	}

	arkModel := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if arkModel == "" {
		arkModel = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		Provider:           provider,
		APIKey:             strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:          strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:          strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:              arkModel,
		BaseURL:            getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:             getEnvOrDefault("ARK_REGION", "cn-beijing"),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", gemini.DefaultModel),
		Temperature:        temperature,
		TopP:               topP,
		MaxTokens:          maxTokens,
		StreamResponse:     stream,
		RouterLLMEnabled:   routerEnabled,
		RouterHistoryLimit: routerHistory,
	}, nil
}
