package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	speechmodel "github.com/zhouzirui/yuanfang/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Speech    speechmodel.SpeechConfig
	Store     StoreConfig
	Knowledge KnowledgeConfig
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

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Speech:    speech,
		Store:     loadStoreConfig(),
		Knowledge: loadKnowledgeConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
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
	Timeout     int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
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

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
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

	timeout := 30
	if timeoutOverride, err := parseOptionalIntEnv("AI_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if timeoutOverride != nil && *timeoutOverride > 0 {
		timeout = *timeoutOverride
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

func loadSpeechConfig() (speechmodel.SpeechConfig, error) {
	timeout := 30
	if timeoutOverride, err := parseOptionalIntEnv("XUNFEI_TIMEOUT"); err != nil {
		return speechmodel.SpeechConfig{}, err
	} else if timeoutOverride != nil && *timeoutOverride > 0 {
		timeout = *timeoutOverride
	}

	chunkSize := 1280
	if chunkOverride, err := parseOptionalIntEnv("XUNFEI_CHUNK_SIZE"); err != nil {
		return speechmodel.SpeechConfig{}, err
	} else if chunkOverride != nil && *chunkOverride > 0 {
		chunkSize = *chunkOverride
	}

	speed, err := parseOptionalIntEnv("XUNFEI_TTS_SPEED")
	if err != nil {
		return speechmodel.SpeechConfig{}, err
	}
	ttsSpeed := 50
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalIntEnv("XUNFEI_TTS_VOLUME")
	if err != nil {
		return speechmodel.SpeechConfig{}, err
	}
	ttsVolume := 50
	if volume != nil {
		ttsVolume = *volume
	}

	return speechmodel.SpeechConfig{
		AppID:     strings.TrimSpace(os.Getenv("XUNFEI_APP_ID")),
		APIKey:    strings.TrimSpace(os.Getenv("XUNFEI_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("XUNFEI_API_SECRET")),
		ASRURL:    getEnvOrDefault("XUNFEI_ASR_URL", "wss://iat-api.xfyun.cn/v2/iat"),
		Language:  getEnvOrDefault("XUNFEI_LANGUAGE", "zh_cn"),
		Domain:    getEnvOrDefault("XUNFEI_DOMAIN", "iat"),
		Accent:    getEnvOrDefault("XUNFEI_ACCENT", "mandarin"),
		Format:    getEnvOrDefault("XUNFEI_FORMAT", "audio/L16;rate=16000"),
		Encoding:  getEnvOrDefault("XUNFEI_ENCODING", "raw"),
		ChunkSize: chunkSize,
		TTSURL:    getEnvOrDefault("XUNFEI_TTS_URL", "wss://tts-api.xfyun.cn/v2/tts"),
		TTSVoice:  getEnvOrDefault("XUNFEI_TTS_VOICE", "xiaoyan"),
		TTSSpeed:  ttsSpeed,
		TTSVolume: ttsVolume,
		Timeout:   timeout,
	}, nil
}

// StoreConfig 描述 SQLite 持久层配置。
type StoreConfig struct {
	DatabasePath string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "yuanfang.db"),
	}
}

// KnowledgeConfig 描述远端知识库配置。AgentID 为空表示不启用知识检索。
type KnowledgeConfig struct {
	BaseURL string
	Token   string
	AgentID string
}

func loadKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{
		BaseURL: strings.TrimSpace(os.Getenv("KNOWLEDGE_AGENT_URL")),
		Token:   strings.TrimSpace(os.Getenv("KNOWLEDGE_AGENT_TOKEN")),
		AgentID: strings.TrimSpace(os.Getenv("KNOWLEDGE_AGENT_ID")),
	}
}

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
