package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting of the Echo backend.
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Speech     SpeechConfig
	Generation GenerationConfig
	Store      StoreConfig
	Simulator  SimulatorConfig
	Log        LogConfig
}

// Load reads the configuration from the environment.
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

	generation, err := loadGenerationConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	simulator, err := loadSimulatorConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Speech:     speech,
		Generation: generation,
		Store:      store,
		Simulator:  simulator,
		Log:        loadLogConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Accept ":8000" or "127.0.0.1:8000" as well as a bare port.
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the Ark chat model used for in-process code generation.
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

// Enabled reports whether credentials and a model are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and Model")
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
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// Speech recognizer modes.
const (
	SpeechModeRelay      = "relay"
	SpeechModeVolcengine = "volcengine"
)

// SpeechConfig describes the transcription capability behind voice capture.
type SpeechConfig struct {
	Mode          string
	AppID         string
	AccessToken   string
	APIKey        string
	AccessKey     string
	SecretKey     string
	ASREndpoint   string
	ASRResourceID string
	ASRLanguage   string
	ASRFormat     string
	SampleRate    int
	Timeout       int
	Enabled       bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	rate, err := parseOptionalIntEnv("SPEECH_SAMPLE_RATE")
	if err != nil {
		return SpeechConfig{}, err
	}
	sampleRate := 16000
	if rate != nil && *rate > 0 {
		sampleRate = *rate
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	accessKey := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("SPEECH_SECRET_KEY"))

	// Fall back to the Ark credentials when no speech-specific ones are set.
	if accessToken == "" && accessKey == "" {
		accessToken = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		apiKey = accessToken
		accessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		secretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
	}

	enabled := appID != "" && accessToken != ""

	mode := strings.ToLower(strings.TrimSpace(os.Getenv("SPEECH_MODE")))
	switch mode {
	case "":
		mode = SpeechModeRelay
		if enabled {
			mode = SpeechModeVolcengine
		}
	case SpeechModeRelay, SpeechModeVolcengine:
	default:
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_MODE value %q", mode)
	}

	return SpeechConfig{
		Mode:          mode,
		AppID:         appID,
		AccessToken:   accessToken,
		APIKey:        apiKey,
		AccessKey:     accessKey,
		SecretKey:     secretKey,
		ASREndpoint:   getEnvOrDefault("SPEECH_ASR_ENDPOINT", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"),
		ASRResourceID: getEnvOrDefault("SPEECH_ASR_RESOURCE_ID", "volc.bigasr.sauc.duration"),
		ASRLanguage:   getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		ASRFormat:     getEnvOrDefault("SPEECH_ASR_FORMAT", "pcm"),
		SampleRate:    sampleRate,
		Timeout:       timeoutSeconds,
		Enabled:       enabled,
	}, nil
}

// GenerationConfig points at a remote generation service. An empty Endpoint
// selects the in-process Ark generator.
type GenerationConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func loadGenerationConfig() (GenerationConfig, error) {
	timeout, err := parseDurationEnv("GENERATION_TIMEOUT", 60*time.Second)
	if err != nil {
		return GenerationConfig{}, err
	}
	return GenerationConfig{
		Endpoint: strings.TrimSpace(os.Getenv("GENERATION_ENDPOINT")),
		Timeout:  timeout,
	}, nil
}

// StoreConfig selects the key-value backend of the session store.
type StoreConfig struct {
	Backend string
	Path    string
	Key     string
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORE_BACKEND", "file"))
	switch backend {
	case "memory", "file", "sqlite":
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q", backend)
	}

	path := strings.TrimSpace(os.Getenv("STORE_PATH"))
	if path == "" {
		path = DefaultStorePath(backend)
	}

	return StoreConfig{
		Backend: backend,
		Path:    path,
		Key:     getEnvOrDefault("STORE_KEY", "echo.savedSessions"),
	}, nil
}

// DefaultStorePath is the per-user location for backend when STORE_PATH is unset.
func DefaultStorePath(backend string) string {
	base := filepath.Join(".", "data")
	if dir, err := os.UserConfigDir(); err == nil {
		base = filepath.Join(dir, "echo")
	}
	if backend == "sqlite" {
		return filepath.Join(base, "echo.db")
	}
	return filepath.Join(base, "sessions")
}

// SimulatorConfig tunes the execution simulator.
type SimulatorConfig struct {
	Delay time.Duration
}

func loadSimulatorConfig() (SimulatorConfig, error) {
	delay, err := parseDurationEnv("SIMULATOR_DELAY", time.Second)
	if err != nil {
		return SimulatorConfig{}, err
	}
	if delay < 0 {
		return SimulatorConfig{}, fmt.Errorf("invalid SIMULATOR_DELAY value %q: must not be negative", delay)
	}
	return SimulatorConfig{Delay: delay}, nil
}

// LogConfig controls the slog runtime.
type LogConfig struct {
	Level string
	File  string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level: getEnvOrDefault("LOG_LEVEL", "info"),
		File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// Bare integers are seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
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
