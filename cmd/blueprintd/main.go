package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blueprintforge/blueprintd/internal/analytics"
	"github.com/blueprintforge/blueprintd/internal/blueprint"
	blueprintpg "github.com/blueprintforge/blueprintd/internal/blueprint/postgres"
	blueprintsql "github.com/blueprintforge/blueprintd/internal/blueprint/sqlite"
	"github.com/blueprintforge/blueprintd/internal/config"
	"github.com/blueprintforge/blueprintd/internal/httpserver"
	"github.com/blueprintforge/blueprintd/internal/logging"
	"github.com/blueprintforge/blueprintd/internal/prompt"
	"github.com/blueprintforge/blueprintd/internal/quality"
	"github.com/blueprintforge/blueprintd/internal/relay"
	"github.com/blueprintforge/blueprintd/internal/upstream"
	"github.com/blueprintforge/blueprintd/internal/upstream/anthropic"
	"github.com/blueprintforge/blueprintd/internal/upstream/openai"
	"github.com/blueprintforge/blueprintd/internal/version"
)

func main() {
	// Credentials may live in a local .env during development.
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize rotating file logging (default enabled when log_file provided)
	logTarget := strings.TrimSpace(cfg.LogFile)
	if logTarget != "" {
		rot, err := logging.OpenRotatingFile(logTarget, logging.DefaultMaxBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[blueprintd] ")
		defer rot.Close()
	}
	log.Printf("starting blueprintd %s env=%s", version.FullInfo(), cfg.Environment)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open blueprint store: %v", err)
	}
	defer store.Close()

	memSink := analytics.NewMemorySink(cfg.AnalyticsBuffer)
	sinks := analytics.MultiSink{memSink}
	if cfg.AnalyticsEndpoint != "" {
		sinks = append(sinks, analytics.NewHTTPSink(cfg.AnalyticsEndpoint,
			log.New(log.Writer(), "[blueprintd/analytics] ", log.LstdFlags|log.Lmicroseconds)))
		log.Printf("analytics collector configured endpoint=%s", cfg.AnalyticsEndpoint)
	}

	prompts := prompt.NewBuilder()
	if cfg.PromptTemplates != "" {
		if err := prompts.LoadOverrides(cfg.PromptTemplates); err != nil {
			log.Fatalf("load prompt templates: %v", err)
		}
		log.Printf("prompt template overrides loaded path=%s", cfg.PromptTemplates)
	}
	if err := prompts.Validate(); err != nil {
		log.Fatalf("validate prompt templates: %v", err)
	}

	// Providers are registered regardless of configured keys: requests may
	// carry their own apiKey, and a missing credential surfaces as a stream
	// error frame instead of a startup failure.
	registry := upstream.NewRegistry()
	_ = registry.Register("anthropic", anthropic.New(anthropic.Config{
		APIKey:    cfg.AnthropicAPIKey,
		BaseURL:   cfg.AnthropicBaseURL,
		Version:   cfg.AnthropicVersion,
		Model:     cfg.AnthropicModel,
		MaxTokens: cfg.AnthropicMaxTokens,
	}))
	_ = registry.Register("openai", openai.New(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}))
	if _, err := registry.Get(cfg.Provider); err != nil {
		log.Fatalf("provider %q not available: %v", cfg.Provider, err)
	}
	log.Printf("upstream providers registered: %v active=%s", registry.Names(), cfg.Provider)

	httpSrv := httpserver.New(store, sinks, registry, prompts, quality.NewKeywordAssessor(),
		log.New(log.Writer(), "[blueprintd/http] ", log.LstdFlags|log.Lmicroseconds),
		httpserver.Options{
			Provider:   cfg.Provider,
			MemorySink: memSink,
			Relay: relay.Options{
				FlushSize:     cfg.FlushSize,
				FlushInterval: cfg.FlushInterval,
			},
		})

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     httpSrv.Router(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: generation streams stay open for minutes.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("blueprint server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func openStore(cfg config.ServiceConfig) (blueprint.Store, error) {
	if cfg.StoreDriver == "postgres" {
		return blueprintpg.New(cfg.PostgresDSN, blueprintpg.Config{})
	}
	return blueprintsql.New(cfg.SQLitePath)
}
