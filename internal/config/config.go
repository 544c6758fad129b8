package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/clanker/backend/internal/model/persona"
	speechmodel "github.com/zhouzirui/clanker/backend/internal/model/speech"
	"github.com/zhouzirui/clanker/backend/internal/service/companion"
	"github.com/zhouzirui/clanker/backend/internal/service/presentation"
)

// 文本模型提供方
const (
	TextProviderAuto   = "auto"
	TextProviderGemini = "gemini"
	TextProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Engine    EngineConfig
	AI        AIConfig
	Gemini    GeminiConfig
	Vertex    VertexConfig
	Speech    speechmodel.TTSConfig
	Persona   PersonaConfig
	Artifacts ArtifactConfig

	Triggers companion.Triggers
	Messages companion.Messages
	Notices  presentation.Notices
	Personas []persona.Persona

	// File 为读取到的 YAML 配置文件路径，可能为空
	File string
}

// Load 从配置文件与环境变量加载配置，环境变量优先。
func Load() (*Config, error) {
	cfg := defaults()

	if path := firstEnv("CLANKER_CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		file.apply(cfg)
		cfg.File = path
	}

	loaders := []func(*Config) error{
		loadServerConfig,
		loadLogConfig,
		loadEngineConfig,
		loadAIConfig,
		loadGeminiConfig,
		loadVertexConfig,
		loadSpeechConfig,
		loadPersonaConfig,
		loadArtifactConfig,
	}
	for _, load := range loaders {
		if err := load(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
		Engine: EngineConfig{
			TickRate:         companion.DefaultTickRate,
			SearchRadius:     companion.DefaultSearchRadius,
			MoveSpeed:        companion.DefaultMoveSpeed,
			ArriveDistance:   companion.DefaultArriveDistance,
			PathRefreshTicks: companion.DefaultPathRefreshTicks,
			Workers:          2,
			QueueSize:        64,
			JobTimeout:       120 * time.Second,
		},
		AI: AIConfig{
			BaseURL:  "https://ark.cn-beijing.volces.com/api/v3",
			Region:   "cn-beijing",
			Provider: TextProviderAuto,
		},
		Gemini: GeminiConfig{Model: "gemini-2.5-flash"},
		Vertex: VertexConfig{
			Location:   "us-central1",
			ImageModel: "imagegeneration",
			MusicModel: "lyria-002",
		},
		Speech: speechmodel.TTSConfig{
			Speed:      1.0,
			Volume:     1.0,
			SampleRate: 24000,
			Timeout:    30,
		},
		Persona:   PersonaConfig{Name: persona.DefaultID, Dir: "personalities"},
		Artifacts: ArtifactConfig{OutputDir: "generated", PackDir: "generated-pack", FFmpegPath: "ffmpeg"},
		Triggers:  companion.DefaultTriggers(),
		Messages:  companion.DefaultMessages(),
		Notices:   presentation.DefaultNotices(),
	}
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(cfg *Config) error {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return nil
	}
	addr, err := parseAddr(port)
	if err != nil {
		return err
	}
	cfg.Server.Addr = addr
	return nil
}

func parseAddr(port string) (string, error) {
	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	return ":" + port, nil
}

// LogConfig 日志级别
type LogConfig struct {
	Level string
}

func loadLogConfig(cfg *Config) error {
	if level := firstEnv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	return nil
}

// EngineConfig 描述主循环与 worker 池参数。
type EngineConfig struct {
	TickRate         int
	SearchRadius     float64
	MoveSpeed        float64
	ArriveDistance   float64
	PathRefreshTicks int64
	Workers          int
	QueueSize        int
	JobTimeout       time.Duration
}

func loadEngineConfig(cfg *Config) error {
	e := &cfg.Engine
	if v, err := parseOptionalIntEnv("TICK_RATE"); err != nil {
		return err
	} else if v != nil {
		e.TickRate = *v
	}
	if v, err := parseOptionalFloatEnv("SEARCH_RADIUS"); err != nil {
		return err
	} else if v != nil {
		e.SearchRadius = *v
	}
	if v, err := parseOptionalFloatEnv("MOVE_SPEED"); err != nil {
		return err
	} else if v != nil {
		e.MoveSpeed = *v
	}
	if v, err := parseOptionalFloatEnv("ARRIVE_DISTANCE"); err != nil {
		return err
	} else if v != nil {
		e.ArriveDistance = *v
	}
	if v, err := parseOptionalIntEnv("PATH_REFRESH_TICKS"); err != nil {
		return err
	} else if v != nil {
		e.PathRefreshTicks = int64(*v)
	}
	if v, err := parseOptionalIntEnv("WORKER_COUNT"); err != nil {
		return err
	} else if v != nil {
		e.Workers = *v
	}
	if v, err := parseOptionalIntEnv("QUEUE_SIZE"); err != nil {
		return err
	} else if v != nil {
		e.QueueSize = *v
	}
	if v, err := parseOptionalDurationEnv("JOB_TIMEOUT"); err != nil {
		return err
	} else if v != nil {
		e.JobTimeout = *v
	}
	if e.TickRate <= 0 {
		return fmt.Errorf("TICK_RATE must be positive, got %d", e.TickRate)
	}
	return nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	// Provider 文本后端：auto、gemini 或 ark
	Provider    string
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

func loadAIConfig(cfg *Config) error {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return err
	}
	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return err
	}

	ai := &cfg.AI
	ai.APIKey = firstEnv("ARK_API_KEY")
	ai.AccessKey = firstEnv("ARK_ACCESS_KEY")
	ai.SecretKey = firstEnv("ARK_SECRET_KEY")
	ai.Model = firstEnv("ARK_MODEL", "Model")
	ai.BaseURL = getEnvOrDefault("ARK_BASE_URL", ai.BaseURL)
	ai.Region = getEnvOrDefault("ARK_REGION", ai.Region)
	ai.Temperature = temperature
	ai.TopP = topP
	ai.MaxTokens = maxTokens

	if p := firstEnv("TEXT_PROVIDER"); p != "" {
		ai.Provider = strings.ToLower(p)
	}
	switch ai.Provider {
	case TextProviderAuto, TextProviderGemini, TextProviderArk:
		return nil
	default:
		return fmt.Errorf("invalid TEXT_PROVIDER value %q", ai.Provider)
	}
}

// GeminiConfig Google AI Studio 文本模型配置
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled 是否提供了 API Key
func (c GeminiConfig) Enabled() bool { return c.APIKey != "" }

func loadGeminiConfig(cfg *Config) error {
	cfg.Gemini.APIKey = firstEnv("GOOGLE_AI_STUDIO_API_KEY", "GEMINI_API_KEY", "GOOGLE_AI_API_KEY", "AI_STUDIO_API_KEY")
	if m := firstEnv("GEMINI_MODEL", "GOOGLE_AI_STUDIO_MODEL", "LLM_MODEL"); m != "" {
		cfg.Gemini.Model = m
	}
	return nil
}

// VertexConfig Vertex AI (Imagen / Lyria) 配置
type VertexConfig struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	ImageModel      string
	MusicModel      string
}

// Enabled 是否配置了项目
func (c VertexConfig) Enabled() bool { return c.ProjectID != "" }

func loadVertexConfig(cfg *Config) error {
	v := &cfg.Vertex
	if p := firstEnv("GOOGLE_CLOUD_PROJECT_ID", "GCP_PROJECT_ID", "PROJECT_ID"); p != "" {
		v.ProjectID = p
	}
	if l := firstEnv("GCP_LOCATION", "GOOGLE_CLOUD_LOCATION", "LOCATION"); l != "" {
		v.Location = l
	}
	if c := firstEnv("GOOGLE_APPLICATION_CREDENTIALS"); c != "" {
		v.CredentialsFile = c
	}
	if m := firstEnv("IMAGEN_MODEL", "VERTEX_IMAGEN_MODEL"); m != "" {
		v.ImageModel = m
	}
	if m := firstEnv("VERTEX_LYRIA_MODEL", "LYRIA_MODEL"); m != "" {
		v.MusicModel = m
	}
	return nil
}

func loadSpeechConfig(cfg *Config) error {
	s := &cfg.Speech

	// 解析超时设置
	if timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT"); err != nil {
		return err
	} else if timeout != nil {
		s.Timeout = *timeout
	}

	// 解析TTS速度和音量
	if speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED"); err != nil {
		return err
	} else if speed != nil {
		s.Speed = *speed
	}
	if volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME"); err != nil {
		return err
	} else if volume != nil {
		s.Volume = *volume
	}
	if rate, err := parseOptionalIntEnv("SPEECH_SAMPLE_RATE"); err != nil {
		return err
	} else if rate != nil {
		s.SampleRate = *rate
	}

	s.AppID = firstEnv("SPEECH_APP_ID")
	s.AccessToken = firstEnv("SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY")
	s.Endpoint = getEnvOrDefault("SPEECH_TTS_ENDPOINT", s.Endpoint)
	s.Voice = getEnvOrDefault("SPEECH_TTS_VOICE", s.Voice)
	s.Language = getEnvOrDefault("SPEECH_TTS_LANGUAGE", s.Language)
	return nil
}

// PersonaConfig 人设选择
type PersonaConfig struct {
	Name string
	Dir  string
	// Language 非空时在提示词后追加 "Always respond in <Language>."
	Language string
}

func loadPersonaConfig(cfg *Config) error {
	p := &cfg.Persona
	p.Name = getEnvOrDefault("CLANKER_PERSONALITY", p.Name)
	p.Dir = getEnvOrDefault("PERSONA_DIR", p.Dir)
	p.Language = getEnvOrDefault("CLANKER_LANGUAGE", p.Language)
	return nil
}

// ArtifactConfig 生成产物输出位置
type ArtifactConfig struct {
	OutputDir  string
	PackDir    string
	FFmpegPath string
}

func loadArtifactConfig(cfg *Config) error {
	a := &cfg.Artifacts
	a.OutputDir = getEnvOrDefault("OUTPUT_DIR", a.OutputDir)
	a.PackDir = getEnvOrDefault("PACK_DIR", a.PackDir)
	a.FFmpegPath = getEnvOrDefault("FFMPEG_PATH", a.FFmpegPath)
	return nil
}

// firstEnv 返回第一个非空的环境变量值
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
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

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

// parseOptionalDurationEnv 接受 "90s" 形式或纯秒数
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		d := time.Duration(secs) * time.Second
		return &d, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &d, nil
}
