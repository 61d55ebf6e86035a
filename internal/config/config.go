package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/revival365/medassist/internal/auth"
)

// Config aggregates every service setting.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Agent    AgentConfig
	Session  SessionConfig
	Voice    VoiceConfig
	Auth     AuthConfig
	Database DatabaseConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	authCfg, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Agent:    agent,
		Session:  session,
		Voice:    voice,
		Auth:     authCfg,
		Database: DatabaseConfig{DSN: strings.TrimSpace(os.Getenv("DATABASE_URL"))},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the Ark chat model driving tool selection and answer
// drafting.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a tool-calling model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (einomodel.ToolCallingChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("chat model credentials missing: provide ARK_API_KEY + MODEL, or the AK/SK pair")
	}

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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// AgentConfig bounds the reasoning loop. Zero values fall back to the
// orchestrator defaults.
type AgentConfig struct {
	MaxIterations int
	RunTimeout    time.Duration
}

func loadAgentConfig() (AgentConfig, error) {
	iterations, err := parseOptionalIntEnv("AGENT_MAX_ITERATIONS")
	if err != nil {
		return AgentConfig{}, err
	}

	timeoutSeconds, err := parseOptionalIntEnv("AGENT_TIMEOUT_SECONDS")
	if err != nil {
		return AgentConfig{}, err
	}

	cfg := AgentConfig{}
	if iterations != nil {
		cfg.MaxIterations = *iterations
	}
	if timeoutSeconds != nil {
		cfg.RunTimeout = time.Duration(*timeoutSeconds) * time.Second
	}
	return cfg, nil
}

// SessionConfig bounds conversation retention. Zero values fall back to the
// memory-manager defaults.
type SessionConfig struct {
	MaxMessages int
	MaxTokens   int
	IdleTTL     time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	maxMessages, err := parseOptionalIntEnv("SESSION_MAX_MESSAGES")
	if err != nil {
		return SessionConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("SESSION_MAX_TOKENS")
	if err != nil {
		return SessionConfig{}, err
	}

	idleSeconds, err := parseOptionalIntEnv("SESSION_IDLE_TTL_SECONDS")
	if err != nil {
		return SessionConfig{}, err
	}

	cfg := SessionConfig{}
	if maxMessages != nil {
		cfg.MaxMessages = *maxMessages
	}
	if maxTokens != nil {
		cfg.MaxTokens = *maxTokens
	}
	if idleSeconds != nil {
		cfg.IdleTTL = time.Duration(*idleSeconds) * time.Second
	}
	return cfg, nil
}

// VoiceConfig tunes endpointing and points at the speech-to-text engines.
type VoiceConfig struct {
	TickIntervalMs       int
	SpeechThreshold      *float64
	NoSpeechTimeoutMs    int
	EndOfSpeechTimeoutMs int
	SampleRate           int

	RegionalSTTURL      string
	InternationalSTTURL string
	STTAPIKey           string
	STTTimeoutSeconds   int
}

// TranscriptionEnabled reports whether at least one engine is configured.
func (c VoiceConfig) TranscriptionEnabled() bool {
	return c.RegionalSTTURL != "" || c.InternationalSTTURL != ""
}

func loadVoiceConfig() (VoiceConfig, error) {
	cfg := VoiceConfig{
		RegionalSTTURL:      strings.TrimSpace(os.Getenv("STT_REGIONAL_URL")),
		InternationalSTTURL: strings.TrimSpace(os.Getenv("STT_INTERNATIONAL_URL")),
		STTAPIKey:           strings.TrimSpace(os.Getenv("STT_API_KEY")),
	}

	for _, item := range []struct {
		key string
		dst *int
	}{
		{"VOICE_TICK_MS", &cfg.TickIntervalMs},
		{"VOICE_NO_SPEECH_TIMEOUT_MS", &cfg.NoSpeechTimeoutMs},
		{"VOICE_END_OF_SPEECH_TIMEOUT_MS", &cfg.EndOfSpeechTimeoutMs},
		{"VOICE_SAMPLE_RATE", &cfg.SampleRate},
		{"STT_TIMEOUT_SECONDS", &cfg.STTTimeoutSeconds},
	} {
		val, err := parseOptionalIntEnv(item.key)
		if err != nil {
			return VoiceConfig{}, err
		}
		if val != nil {
			*item.dst = *val
		}
	}

	threshold, err := parseOptionalFloatEnv("VOICE_SPEECH_THRESHOLD")
	if err != nil {
		return VoiceConfig{}, err
	}
	cfg.SpeechThreshold = threshold

	return cfg, nil
}

// AuthConfig carries statically configured bearer tokens for deployments
// without a user database.
type AuthConfig struct {
	StaticTokens auth.StaticVerifier
}

// loadAuthConfig parses AUTH_TOKENS entries shaped like
// "token:userID:roleRank:RoleName", comma separated.
func loadAuthConfig() (AuthConfig, error) {
	raw := strings.TrimSpace(os.Getenv("AUTH_TOKENS"))
	if raw == "" {
		return AuthConfig{}, nil
	}

	tokens := auth.StaticVerifier{}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 {
			return AuthConfig{}, fmt.Errorf("invalid AUTH_TOKENS entry %q", entry)
		}

		userID, err := strconv.Atoi(parts[1])
		if err != nil {
			return AuthConfig{}, fmt.Errorf("invalid user id in AUTH_TOKENS entry %q", entry)
		}

		roleRank, err := strconv.Atoi(parts[2])
		if err != nil {
			return AuthConfig{}, fmt.Errorf("invalid role rank in AUTH_TOKENS entry %q", entry)
		}

		tokens[parts[0]] = auth.Identity{
			UserID:   userID,
			RoleRank: roleRank,
			RoleName: parts[3],
		}
	}
	return AuthConfig{StaticTokens: tokens}, nil
}

// DatabaseConfig points at the medical records database.
type DatabaseConfig struct {
	DSN string
}

// Enabled reports whether a database connection was configured.
func (c DatabaseConfig) Enabled() bool { return c.DSN != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
