package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string
	JWTSecret   string

	// LLM provider selection: "openai" or "gemini".
	LLMProvider    string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIEmbModel string
	GeminiAPIKey   string
	GeminiModel    string
	GeminiEmbModel string

	// Conversation pipeline knobs.
	ContextBudget   int           // trailing character budget for the context block
	RecencyWindow   int           // number of most recent messages included as context
	SimilarityTopK  int           // number of semantically similar messages included
	ProviderTimeout time.Duration // per external LLM call

	DefaultPassword string // initial password for bulk-provisioned accounts
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "bunshin.db"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		LLMProvider:    getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4.1"),
		OpenAIEmbModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		GeminiEmbModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),

		ContextBudget:   getEnvAsInt("CONTEXT_BUDGET", 1500),
		RecencyWindow:   getEnvAsInt("RECENCY_WINDOW", 10),
		SimilarityTopK:  getEnvAsInt("SIMILARITY_TOP_K", 5),
		ProviderTimeout: time.Duration(getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,

		DefaultPassword: getEnv("DEFAULT_PASSWORD", "default1234"),
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	switch AppConfig.LLMProvider {
	case "openai":
		if AppConfig.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required when LLM_PROVIDER=openai")
		}
	case "gemini":
		if AppConfig.GeminiAPIKey == "" {
			log.Fatal("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")
		}
	default:
		log.Fatalf("Unknown LLM_PROVIDER %q (expected openai or gemini)", AppConfig.LLMProvider)
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
