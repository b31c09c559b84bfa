package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Provider names
const (
	ProviderRemote  = "remote"
	ProviderGoogle  = "google"
	ProviderWhisper = "whisper"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderMock    = "mock"

	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// Config is the service configuration, read from the environment
type Config struct {
	Port     string
	LogLevel string

	JWTSecret string

	TranscriptionProvider string
	TranscriptionURL      string
	SuggestionProvider    string
	SuggestionURL         string
	BillingURL            string
	GeminiAPIKey          string
	OpenAIAPIKey          string
	OpenAIModel           string
	SpeechLanguage        string
	RequestTimeout        time.Duration
	MaxCaptureBytes       int

	SweepInterval         time.Duration
	ConsultationRetention time.Duration
	ConsultationMaxIdle   time.Duration

	Storage         string
	MongoDBURI      string
	MongoDBDatabase string

	S3 S3Config

	// SpeechStaging is the Cloud Storage bucket, reached through its S3
	// interoperability endpoint, that holds recordings too large to send
	// inline to Google Speech-to-Text.
	SpeechStaging S3Config
}

// S3Config holds the optional audio archive settings
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether an archive bucket is configured
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Load reads a .env file when present, then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from environment variables and validates it
func FromEnv() (*Config, error) {
	timeoutSeconds, err := intEnv("REQUEST_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	maxCapture, err := intEnv("MAX_CAPTURE_BYTES", 64<<20)
	if err != nil {
		return nil, err
	}
	useSSL, err := boolEnv("S3_USE_SSL", true)
	if err != nil {
		return nil, err
	}
	retentionMinutes, err := intEnv("CONSULTATION_RETENTION_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	maxIdleMinutes, err := intEnv("CONSULTATION_MAX_IDLE_MINUTES", 240)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                  stringEnv("PORT", "8080"),
		LogLevel:              stringEnv("LOG_LEVEL", "info"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		TranscriptionProvider: stringEnv("TRANSCRIPTION_PROVIDER", ProviderMock),
		TranscriptionURL:      os.Getenv("TRANSCRIPTION_URL"),
		SuggestionProvider:    stringEnv("SUGGESTION_PROVIDER", ProviderMock),
		SuggestionURL:         os.Getenv("SUGGESTION_URL"),
		BillingURL:            os.Getenv("BILLING_URL"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:           os.Getenv("OPENAI_MODEL"),
		SpeechLanguage:        stringEnv("SPEECH_LANGUAGE", "en-US"),
		RequestTimeout:        time.Duration(timeoutSeconds) * time.Second,
		MaxCaptureBytes:       maxCapture,
		SweepInterval:         time.Minute,
		ConsultationRetention: time.Duration(retentionMinutes) * time.Minute,
		ConsultationMaxIdle:   time.Duration(maxIdleMinutes) * time.Minute,
		Storage:               stringEnv("STORAGE", StorageMemory),
		MongoDBURI:            os.Getenv("MONGODB_URI"),
		MongoDBDatabase:       stringEnv("MONGODB_DATABASE", "konsulta"),
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    os.Getenv("S3_REGION"),
			UseSSL:    useSSL,
		},
		SpeechStaging: S3Config{
			Endpoint:  stringEnv("GCS_ENDPOINT", "storage.googleapis.com"),
			AccessKey: os.Getenv("GCS_HMAC_ACCESS_KEY"),
			SecretKey: os.Getenv("GCS_HMAC_SECRET"),
			Bucket:    os.Getenv("GOOGLE_SPEECH_BUCKET"),
			UseSSL:    true,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every selected provider has what it needs
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.BillingURL == "" {
		return fmt.Errorf("BILLING_URL is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.ConsultationRetention <= 0 || c.ConsultationMaxIdle <= 0 {
		return fmt.Errorf("consultation retention and max idle must be positive")
	}

	switch c.TranscriptionProvider {
	case ProviderRemote:
		if c.TranscriptionURL == "" {
			return fmt.Errorf("TRANSCRIPTION_URL is required for the remote transcription provider")
		}
	case ProviderWhisper:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the whisper transcription provider")
		}
	case ProviderGoogle:
		if c.SpeechStaging.Bucket != "" && (c.SpeechStaging.AccessKey == "" || c.SpeechStaging.SecretKey == "") {
			return fmt.Errorf("GCS_HMAC_ACCESS_KEY and GCS_HMAC_SECRET are required when GOOGLE_SPEECH_BUCKET is set")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown TRANSCRIPTION_PROVIDER %q", c.TranscriptionProvider)
	}

	switch c.SuggestionProvider {
	case ProviderRemote:
		if c.SuggestionURL == "" {
			return fmt.Errorf("SUGGESTION_URL is required for the remote suggestion provider")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini suggestion provider")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai suggestion provider")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown SUGGESTION_PROVIDER %q", c.SuggestionProvider)
	}

	switch c.Storage {
	case StorageMemory:
	case StorageMongo:
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required for mongo storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	if c.S3.Enabled() && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
