package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// DataDir is the root under which every bot keeps its schedule,
	// metadata, uploaded document, and retrieval index.
	DataDir string

	// OpenAIAPIKey is the fallback credential used when a bot was
	// created without one of its own.
	OpenAIAPIKey   string
	PlannerModel   string
	EmbeddingModel string
	PlannerTimeout time.Duration

	// PlannerMaxSteps bounds how many completion rounds a single turn
	// may consume before the reply is forced.
	PlannerMaxSteps int

	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int
	DenseWeight   float64
	SparseWeight  float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8838"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DataDir:         getEnv("DATA_DIR", "bots_data"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		PlannerModel:    getEnv("PLANNER_MODEL", "gpt-4o"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		PlannerTimeout:  getEnvAsDuration("PLANNER_TIMEOUT", 30*time.Second),
		PlannerMaxSteps: getEnvAsInt("PLANNER_MAX_STEPS", 8),
		ChunkSize:       getEnvAsInt("CHUNK_SIZE", 800),
		ChunkOverlap:    getEnvAsInt("CHUNK_OVERLAP", 100),
		RetrievalTopK:   getEnvAsInt("RETRIEVAL_TOP_K", 5),
		DenseWeight:     getEnvAsFloat("DENSE_WEIGHT", 0.5),
		SparseWeight:    getEnvAsFloat("SPARSE_WEIGHT", 0.5),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
