package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Backend   BackendConfig
	Workspace WorkspaceConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	UploadBodyLimitMB  int
}

// BackendConfig describes the external document-QA service.
type BackendConfig struct {
	BaseURL           string
	UploadTimeout     time.Duration
	ChatTimeout       time.Duration
	EndSessionTimeout time.Duration
	DetachedTimeout   time.Duration
}

type WorkspaceConfig struct {
	IdleTTL        time.Duration
	SingleFileMode bool
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/smartpdf.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", ""),
			UploadBodyLimitMB:  getEnvAsInt("UPLOAD_BODY_LIMIT_MB", 50),
		},
		Backend: BackendConfig{
			BaseURL:           getEnv("BACKEND_BASE_URL", "http://127.0.0.1:8000"),
			UploadTimeout:     getEnvAsDuration("UPLOAD_TIMEOUT", 120*time.Second),
			ChatTimeout:       getEnvAsDuration("CHAT_TIMEOUT", 60*time.Second),
			EndSessionTimeout: getEnvAsDuration("END_SESSION_TIMEOUT", 15*time.Second),
			DetachedTimeout:   getEnvAsDuration("DETACHED_TIMEOUT", 5*time.Second),
		},
		Workspace: WorkspaceConfig{
			IdleTTL:        getEnvAsDuration("WORKSPACE_IDLE_TTL", time.Hour),
			SingleFileMode: getEnvAsBool("SINGLE_FILE_MODE", false),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
