package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/mri-check/internal/artifact"
)

// DefaultModelFileID is the Google Drive id of the published model artifact.
const DefaultModelFileID = "10nlJfTiDtu4Gokx5HndDQPAwDU2FwgXf"

const (
	BackendHTTP = "http"
	BackendGRPC = "grpc"

	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// SMTP holds the outgoing mail settings.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Config is the process configuration.
type Config struct {
	Port string

	ModelPath   string
	ModelFileID string
	ModelURL    string

	ClassifierBackend    string
	ClassifierAddr       string
	ClassifierModelName  string
	ClassifierGRPCMethod string
	ClassifierTimeout    time.Duration

	SessionStore  string
	RedisAddr     string
	DatabaseDSN   string
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookies bool

	SMTP SMTP

	MaxUploadMB    int
	AllowedOrigins []string

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present), an optional config file and the environment. Environment
// variables win over the file.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:                 v.GetString("PORT"),
		ModelPath:            v.GetString("MODEL_PATH"),
		ModelFileID:          v.GetString("MODEL_FILE_ID"),
		ModelURL:             v.GetString("MODEL_URL"),
		ClassifierBackend:    strings.ToLower(v.GetString("CLASSIFIER_BACKEND")),
		ClassifierAddr:       v.GetString("CLASSIFIER_ADDR"),
		ClassifierModelName:  v.GetString("CLASSIFIER_MODEL_NAME"),
		ClassifierGRPCMethod: v.GetString("CLASSIFIER_GRPC_METHOD"),
		ClassifierTimeout:    v.GetDuration("CLASSIFIER_TIMEOUT"),
		SessionStore:         strings.ToLower(v.GetString("SESSION_STORE")),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		DatabaseDSN:          v.GetString("DATABASE_DSN"),
		SessionSecret:        v.GetString("SESSION_SECRET"),
		SessionTTL:           v.GetDuration("SESSION_TTL"),
		SecureCookies:        v.GetBool("SECURE_COOKIES"),
		SMTP: SMTP{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		MaxUploadMB:    v.GetInt("MAX_UPLOAD_MB"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("MODEL_PATH", "./model/brain_tumor_classification.keras")
	v.SetDefault("MODEL_FILE_ID", DefaultModelFileID)
	v.SetDefault("MODEL_URL", "")
	v.SetDefault("CLASSIFIER_BACKEND", BackendHTTP)
	v.SetDefault("CLASSIFIER_ADDR", "http://tf-serving:8501")
	v.SetDefault("CLASSIFIER_MODEL_NAME", "brain_tumor_classification")
	v.SetDefault("CLASSIFIER_GRPC_METHOD", "/mricheck.v1.Classifier/Predict")
	v.SetDefault("CLASSIFIER_TIMEOUT", 30*time.Second)
	v.SetDefault("SESSION_STORE", StoreRedis)
	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=mricheck port=5432 sslmode=disable")
	v.SetDefault("SESSION_SECRET", "dev-secret")
	v.SetDefault("SESSION_TTL", 24*time.Hour)
	v.SetDefault("SECURE_COOKIES", false)
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.ClassifierBackend {
	case BackendHTTP, BackendGRPC:
	default:
		return fmt.Errorf("CLASSIFIER_BACKEND must be %q or %q, got %q", BackendHTTP, BackendGRPC, c.ClassifierBackend)
	}
	if c.ClassifierAddr == "" {
		return errors.New("CLASSIFIER_ADDR is required")
	}
	switch c.SessionStore {
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when SESSION_STORE is redis")
		}
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required when SESSION_STORE is postgres")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreRedis, StorePostgres, c.SessionStore)
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.ClassifierTimeout <= 0 {
		return errors.New("CLASSIFIER_TIMEOUT must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be a positive integer")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP_PORT (%d) is out of range", c.SMTP.Port)
	}
	return nil
}

// ArtifactURL is the download location of the model artifact. MODEL_URL overrides the Drive id.
func (c *Config) ArtifactURL() string {
	if c.ModelURL != "" {
		return c.ModelURL
	}
	if c.ModelFileID == "" {
		return ""
	}
	return artifact.DriveURL(c.ModelFileID)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
