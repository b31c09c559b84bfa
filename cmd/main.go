package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	billingadapter "github.com/satriahrh/konsulta/adapters/billing"
	"github.com/satriahrh/konsulta/adapters/device"
	"github.com/satriahrh/konsulta/adapters/llm"
	"github.com/satriahrh/konsulta/adapters/memory"
	mongoadapter "github.com/satriahrh/konsulta/adapters/mongo"
	"github.com/satriahrh/konsulta/adapters/s3"
	"github.com/satriahrh/konsulta/adapters/stt"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/ai"
	"github.com/satriahrh/konsulta/internal/api"
	"github.com/satriahrh/konsulta/internal/auth"
	"github.com/satriahrh/konsulta/internal/config"
	"github.com/satriahrh/konsulta/internal/consultation"
	"github.com/satriahrh/konsulta/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	validator, err := auth.NewValidator(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("Failed to create token validator", zap.Error(err))
	}

	// Initialize adapters
	transcriber, closeTranscriber, err := newTranscriber(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize transcription", zap.Error(err))
	}
	defer closeTranscriber()

	suggester, err := newSuggester(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize suggestions", zap.Error(err))
	}

	gateway, err := billingadapter.NewGateway(billingadapter.Config{
		URL:     cfg.BillingURL,
		Timeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize billing gateway", zap.Error(err))
	}

	var records repositories.ConsultationRepository
	var mongoClient *mongoadapter.Client
	switch cfg.Storage {
	case config.StorageMongo:
		mongoClient, err = mongoadapter.NewClient(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		records = mongoadapter.NewConsultationRepository(mongoClient.Database, logger)
	default:
		records = memory.NewConsultationRepository()
	}

	var artifacts repositories.ArtifactStore
	if cfg.S3.Enabled() {
		store, err := s3.NewArtifactStore(ctx, s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize audio archive", zap.Error(err))
		}
		artifacts = store
	}

	// Initialize consultation services
	pool := device.NewPool(cfg.MaxCaptureBytes, logger)
	transcription := ai.NewTranscriptionClient(transcriber, logger)
	registry := consultation.NewRegistry(pool, consultation.Dependencies{
		Transcription:  transcription,
		Suggestions:    ai.NewSuggestionClient(suggester, logger),
		Billing:        gateway,
		Repository:     records,
		Artifacts:      artifacts,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	sweeper := consultation.NewSweeper(registry, consultation.SweeperConfig{
		Interval:  cfg.SweepInterval,
		Retention: cfg.ConsultationRetention,
		MaxIdle:   cfg.ConsultationMaxIdle,
	}, logger)
	sweeper.Start()

	hub := websocket.NewHub(registry, pool, websocket.NewMessageValidator(transcription.SupportsEncoding), logger)
	go hub.Run()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.NewHandler(registry, hub, pool, records, validator, logger))

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("transcription", cfg.TranscriptionProvider),
		zap.String("suggestions", cfg.SuggestionProvider),
		zap.String("storage", cfg.Storage),
		zap.Bool("audioArchive", artifacts != nil))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sweeper.Stop()
	registry.CloseAll()
	hub.Stop()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		mongoClient.Close(shutdownCtx)
	}

	logger.Info("Server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}

func newTranscriber(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Transcriber, func(), error) {
	noop := func() {}

	switch cfg.TranscriptionProvider {
	case config.ProviderRemote:
		t, err := stt.NewRemoteTranscriber(stt.RemoteConfig{URL: cfg.TranscriptionURL, Timeout: cfg.RequestTimeout}, logger)
		return t, noop, err
	case config.ProviderGoogle:
		googleConfig := stt.GoogleConfig{Language: cfg.SpeechLanguage}
		if cfg.SpeechStaging.Bucket != "" {
			staging, err := s3.NewArtifactStore(ctx, s3.Config{
				Endpoint:  cfg.SpeechStaging.Endpoint,
				AccessKey: cfg.SpeechStaging.AccessKey,
				SecretKey: cfg.SpeechStaging.SecretKey,
				Bucket:    cfg.SpeechStaging.Bucket,
				UseSSL:    cfg.SpeechStaging.UseSSL,
			}, logger)
			if err != nil {
				return nil, noop, fmt.Errorf("speech staging bucket: %w", err)
			}
			googleConfig.StagingBucket = cfg.SpeechStaging.Bucket
			googleConfig.Staging = staging
		}
		t, err := stt.NewGoogleTranscriber(ctx, googleConfig, logger)
		if err != nil {
			return nil, noop, err
		}
		return t, func() { t.Close() }, nil
	case config.ProviderWhisper:
		t, err := stt.NewWhisperTranscriber(cfg.OpenAIAPIKey, cfg.SpeechLanguage, logger)
		return t, noop, err
	default:
		logger.Warn("Using mock transcription")
		return stt.NewMockTranscriber(logger), noop, nil
	}
}

func newSuggester(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SuggestionEngine, error) {
	switch cfg.SuggestionProvider {
	case config.ProviderRemote:
		return llm.NewRemoteSuggester(cfg.SuggestionURL, cfg.RequestTimeout, logger)
	case config.ProviderGemini:
		return llm.NewGeminiSuggester(ctx, llm.GeminiConfig{APIKey: cfg.GeminiAPIKey}, logger)
	case config.ProviderOpenAI:
		return llm.NewOpenAISuggester(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
	default:
		logger.Warn("Using mock suggestions")
		return llm.NewMockSuggester(logger), nil
	}
}
