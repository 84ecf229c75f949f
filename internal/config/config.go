package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Routing  RoutingConfig
	Session  SessionConfig
	Facility FacilityConfig
	Location LocationConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	routing, err := loadRoutingConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	facility, err := loadFacilityConfig()
	if err != nil {
		return nil, err
	}

	location, err := loadLocationConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Routing:  routing,
		Session:  session,
		Facility: facility,
		Location: location,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AllowedOrigins 为空时允许任意来源。
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := parseListEnv("CORS_ALLOWED_ORIGINS")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// SessionConfig 描述会话存储的容量与过期策略。
type SessionConfig struct {
	TTL             time.Duration
	MaxSessions     int
	MaxMessages     int
	JanitorInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	janitor, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	maxSessions := 10000
	if v, err := parseOptionalIntEnv("SESSION_MAX"); err != nil {
		return SessionConfig{}, err
	} else if v != nil {
		if *v < 0 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_MAX value %d: must not be negative", *v)
		}
		maxSessions = *v
	}

	maxMessages := 200
	if v, err := parseOptionalIntEnv("SESSION_MAX_MESSAGES"); err != nil {
		return SessionConfig{}, err
	} else if v != nil {
		if *v < 0 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_MAX_MESSAGES value %d: must not be negative", *v)
		}
		maxMessages = *v
	}

	return SessionConfig{
		TTL:             ttl,
		MaxSessions:     maxSessions,
		MaxMessages:     maxMessages,
		JanitorInterval: janitor,
	}, nil
}

// FacilityConfig 描述设施数据来源与默认检索半径。
type FacilityConfig struct {
	// DataDir 为空时使用内置数据集。
	DataDir       string
	DefaultRadius float64
	// PromptLimit 控制每个类别写入提示词的最近设施数量。
	PromptLimit int
}

func loadFacilityConfig() (FacilityConfig, error) {
	radius := 15.0
	if v, err := parseOptionalFloatEnv("SEARCH_RADIUS_KM"); err != nil {
		return FacilityConfig{}, err
	} else if v != nil {
		if *v <= 0 {
			return FacilityConfig{}, fmt.Errorf("invalid SEARCH_RADIUS_KM value %v: must be positive", *v)
		}
		radius = *v
	}

	limit := 5
	if v, err := parseOptionalIntEnv("FACILITY_PROMPT_LIMIT"); err != nil {
		return FacilityConfig{}, err
	} else if v != nil && *v > 0 {
		limit = *v
	}

	return FacilityConfig{
		DataDir:       strings.TrimSpace(os.Getenv("FACILITY_DATA_DIR")),
		DefaultRadius: radius,
		PromptLimit:   limit,
	}, nil
}

// LocationConfig 描述基于 IP 的定位服务。
type LocationConfig struct {
	IPLookupEnabled bool
	IPLookupURL     string
	Timeout         time.Duration
}

func loadLocationConfig() (LocationConfig, error) {
	enabled, err := parseBoolEnv("IP_LOCATION_ENABLED", false)
	if err != nil {
		return LocationConfig{}, err
	}

	timeout, err := parseDurationEnv("IP_LOCATION_TIMEOUT", 5*time.Second)
	if err != nil {
		return LocationConfig{}, err
	}

	return LocationConfig{
		IPLookupEnabled: enabled,
		IPLookupURL:     getEnvOrDefault("IP_LOCATION_URL", "http://ip-api.com/json/"),
		Timeout:         timeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 接受 Go duration 字符串（如 "30m"），纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
