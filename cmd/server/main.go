package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimine/bunshin/internal/api"
	"github.com/aimine/bunshin/internal/config"
	"github.com/aimine/bunshin/internal/core"
	"github.com/aimine/bunshin/internal/llm"
	"github.com/aimine/bunshin/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	setupLogging(config.AppConfig.LogLevel)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM provider client
	ctx := context.Background()
	llmClient, err := llm.New(ctx, config.AppConfig)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	defer llmClient.Close()

	// Initialize services
	chatService := core.NewChatService(dbStore, llmClient.Embedder, llmClient.Completer, core.Options{
		ContextBudget:   config.AppConfig.ContextBudget,
		RecencyWindow:   config.AppConfig.RecencyWindow,
		SimilarityTopK:  config.AppConfig.SimilarityTopK,
		ProviderTimeout: config.AppConfig.ProviderTimeout,
	})
	analysisService := core.NewAnalysisService(dbStore, llmClient.Completer, config.AppConfig.ProviderTimeout)
	provisionService := core.NewProvisionService(dbStore, config.AppConfig.DefaultPassword)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(dbStore, chatService, analysisService, provisionService)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second, // Adjusted for potentially slower LLM handshakes
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		slog.Info("Starting server. Press Ctrl+C to quit.", "addr", serverAddr, "provider", config.AppConfig.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received
	slog.Info("Shutting down server...")

	// Create a context with a timeout for the shutdown.
	// This gives active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// llmClient.Close() and dbStore.Close() will be called by their defers.
	slog.Info("Server exiting gracefully")
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
