package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"triagefm/internal/bot"
	"triagefm/internal/config"
	"triagefm/internal/extractor"
	"triagefm/internal/session"
	"triagefm/internal/storage"
	"triagefm/internal/synth"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(cfg.Level())

	log.WithFields(logrus.Fields{
		"badgerdb_path":    cfg.BadgerDBPath,
		"llm_provider":     cfg.LLMProvider,
		"llm_model":        cfg.LLMModel,
		"browser_fallback": cfg.BrowserFallback,
		"export_docx":      cfg.ExportDocx,
	}).Info("Configuration loaded successfully")

	// Create context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize Components ---
	log.Info("Initializing components...")

	// Database
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		log.Info("Closing database...")
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()
	go repo.RunGC(ctx, cfg.GCInterval())

	// Extractor
	var extractorOpts []extractor.Option
	if cfg.BrowserFallback {
		extractorOpts = append(extractorOpts, extractor.WithRenderer(extractor.NewRodRenderer(cfg.FetchTimeout()*2, log)))
	}
	contentExtractor := extractor.New(extractor.Config{
		FetchTimeout:    cfg.FetchTimeout(),
		MaxBytes:        cfg.FetchMaxBytes,
		RateLimit:       cfg.FetchRateLimit,
		MinArticleChars: cfg.MinArticleChars,
		TempDir:         cfg.TempDir,
	}, log, extractorOpts...)

	// Synthesizer
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	synthesizer := synth.New(synth.Config{
		Model:          cfg.LLMModel,
		MaxPromptChars: cfg.LLMMaxPromptChars,
		Timeout:        cfg.LLMTimeout(),
		Temperature:    cfg.LLMTemperature,
		MaxTokens:      cfg.LLMMaxTokens,
	}, provider, log)

	orchestrator := session.New(contentExtractor, synthesizer, repo, log)

	// Bot Handler
	botHandler, err := bot.NewHandler(cfg, orchestrator, log)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram bot handler: %v", err)
	}

	// --- Application Startup ---
	log.Info("Starting triage.fm...")

	go botHandler.Start(ctx)

	log.Info("triage.fm is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down triage.fm...")
	stop()

	log.Info("triage.fm shut down gracefully.")
}

// buildProvider selects the LLM backend named by LLM_PROVIDER.
func buildProvider(ctx context.Context, cfg config.Config) (synth.Provider, error) {
	client := &http.Client{Timeout: cfg.LLMTimeout()}

	switch cfg.LLMProvider {
	case config.ProviderOpenRouter:
		return synth.NewOpenAICompatible(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, client)
	case config.ProviderOpenAI:
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = synth.DefaultOpenAIURL
		}
		return synth.NewOpenAICompatible(cfg.LLMProvider, cfg.LLMAPIKey, baseURL, cfg.LLMModel, client)
	case config.ProviderOllama:
		return synth.NewOllama(cfg.LLMBaseURL, cfg.LLMModel)
	case config.ProviderGemini:
		return synth.NewGeminiProvider(ctx, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL, client)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
