package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/workflow-copilot/internal/api"
	"github.com/tjfontaine/workflow-copilot/internal/auth"
	"github.com/tjfontaine/workflow-copilot/internal/config"
	"github.com/tjfontaine/workflow-copilot/internal/credentials"
	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/engine"
	"github.com/tjfontaine/workflow-copilot/internal/llm"
	"github.com/tjfontaine/workflow-copilot/internal/llm/anthropic"
	"github.com/tjfontaine/workflow-copilot/internal/n8n"
	"github.com/tjfontaine/workflow-copilot/internal/planner"
	"github.com/tjfontaine/workflow-copilot/internal/server"
	"github.com/tjfontaine/workflow-copilot/internal/storage/sqlite"
	"github.com/tjfontaine/workflow-copilot/internal/telemetry"
	"github.com/tjfontaine/workflow-copilot/internal/vault"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.Init("workflow-copilot", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(os.Getenv("COPILOT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	v, err := vault.NewFromHex(cfg.Vault.Key)
	if err != nil {
		log.Fatalf("Failed to initialize vault: %v", err)
	}

	store, err := sqlite.New(cfg.Storage.SQLite.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	var provider llm.Provider
	if cfg.Anthropic.APIKey != "" {
		opts := []anthropic.ProviderOption{}
		if cfg.Anthropic.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Anthropic.Model))
		}
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		provider = anthropic.New(cfg.Anthropic.APIKey, opts...)
	} else {
		logger.Warn("no anthropic api key configured; conversations will not produce plans")
	}

	// One client per credential; the engine and the planner share the
	// construction path so decryption happens in exactly one place.
	newClient := func(cred *domain.Credential) (*n8n.Client, error) {
		return n8n.FromEncrypted(v, cred.InstanceURL, cred.EncryptedSecret)
	}

	eng := engine.New(store, provider, func(cred *domain.Credential) (engine.WorkflowFetcher, error) {
		return newClient(cred)
	}, logger)
	plans := planner.New(store, func(cred *domain.Credential) (planner.PlatformClient, error) {
		return newClient(cred)
	}, logger)
	creds := credentials.New(store, v, logger)

	keys := make([]auth.Key, 0, len(cfg.APIKeys))
	for _, kc := range cfg.APIKeys {
		keys = append(keys, auth.Key{Digest: kc.Digest, OwnerID: kc.OwnerID, Name: kc.Name})
	}

	srv := server.New(cfg.Server.Port, logger, auth.New(keys))
	api.New(eng, plans, creds, logger).Register(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigCh:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
