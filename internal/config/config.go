// Package config loads Narra configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Embedding provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Embedding
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string
	OpenAIKey      string

	// Optional cross-encoder endpoint (TEI-style /rerank). Empty disables reranking.
	RerankerURL string

	// Session state persistence
	SessionStatePath string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Token budgets
	DefaultTokenBudget int
	MaxTokenBudget     int
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "narra"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "world"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		EmbedProvider:  getEnv("NARRA_EMBED_PROVIDER", ProviderOllama),
		EmbedModel:     getEnv("NARRA_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("NARRA_EMBED_DIMENSION", 384),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),

		RerankerURL: getEnv("NARRA_RERANKER_URL", ""),

		SessionStatePath: getEnv("NARRA_SESSION_STATE", defaultSessionPath()),

		LogFile:  getEnv("NARRA_LOG_FILE", "/tmp/narra.log"),
		LogLevel: parseLogLevel(getEnv("NARRA_LOG_LEVEL", "INFO")),

		DefaultTokenBudget: getEnvInt("NARRA_TOKEN_BUDGET", 2000),
		MaxTokenBudget:     getEnvInt("NARRA_MAX_TOKEN_BUDGET", 8000),
	}
}

func defaultSessionPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".narra", "session.json")
	}
	return "/tmp/narra-session.json"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
