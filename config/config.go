package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Port string

	LLMProvider     string
	ModelName       string
	OpenAIAPIKey    string
	GroqAPIKey      string
	AnthropicAPIKey string
	LLMTimeout      time.Duration
	LLMTemperature  float64

	MaxTurns       int
	DefaultVariant string
	CatalogPath    string

	StoreBackend  string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	RedisURL       string
	SessionIdleTTL time.Duration

	PineconeAPIKey    string
	PineconeIndexName string
	ReferenceDocsDir  string
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] No .env file loaded: %v", err)
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		LLMProvider:     getEnv("LLM_PROVIDER", ProviderOpenAI),
		ModelName:       os.Getenv("MODEL_NAME"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 60*time.Second),
		LLMTemperature:  getFloatEnv("LLM_TEMPERATURE", 0.7),

		MaxTurns:       getIntEnv("MAX_TURNS", 6),
		DefaultVariant: getEnv("DEFAULT_VARIANT", "encouraging_mentor"),
		CatalogPath:    os.Getenv("CATALOG_PATH"),

		StoreBackend:  getEnv("STORE_BACKEND", BackendMemory),
		DatabaseURL:   os.Getenv("DB_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "chat-database"),

		RedisURL:       os.Getenv("REDIS_URL"),
		SessionIdleTTL: getDurationEnv("SESSION_IDLE_TTL", 2*time.Hour),

		PineconeAPIKey:    os.Getenv("PINECONE_API_KEY"),
		PineconeIndexName: getEnv("PINECONE_INDEX_NAME", "socratic-reference-index"),
		ReferenceDocsDir:  getEnv("REFERENCE_DOCS_DIR", "./reference"),
	}
}

// Validate checks that the selected provider and store backend have what they need.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for provider %q", c.LLMProvider)
		}
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY environment variable is required for provider %q", c.LLMProvider)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_URL environment variable is required for postgres store")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable is required for mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.MaxTurns < 0 {
		return fmt.Errorf("MAX_TURNS cannot be negative")
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] Invalid integer for %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[WARN] Invalid float for %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] Invalid duration for %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}
