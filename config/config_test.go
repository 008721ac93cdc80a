package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LLM_PROVIDER", "MAX_TURNS", "LLM_TIMEOUT", "STORE_BACKEND", "SESSION_IDLE_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, expected 8080", cfg.Port)
	}
	if cfg.LLMProvider != ProviderOpenAI {
		t.Errorf("LLMProvider = %q, expected %q", cfg.LLMProvider, ProviderOpenAI)
	}
	if cfg.MaxTurns != 6 {
		t.Errorf("MaxTurns = %d, expected 6", cfg.MaxTurns)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Errorf("LLMTimeout = %s, expected 60s", cfg.LLMTimeout)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, expected %q", cfg.StoreBackend, BackendMemory)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_TURNS", "0")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("LLM_TEMPERATURE", "not-a-number")
	t.Setenv("LLM_PROVIDER", ProviderGroq)

	cfg := Load()

	if cfg.MaxTurns != 0 {
		t.Errorf("MaxTurns = %d, expected 0 (unlimited)", cfg.MaxTurns)
	}
	if cfg.LLMTimeout != 5*time.Second {
		t.Errorf("LLMTimeout = %s, expected 5s", cfg.LLMTimeout)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Errorf("LLMTemperature = %v, expected fallback 0.7", cfg.LLMTemperature)
	}
	if cfg.LLMProvider != ProviderGroq {
		t.Errorf("LLMProvider = %q, expected %q", cfg.LLMProvider, ProviderGroq)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "openai with key and memory store",
			cfg:     Config{LLMProvider: ProviderOpenAI, OpenAIAPIKey: "k", StoreBackend: BackendMemory},
			wantErr: false,
		},
		{
			name:    "openai without key",
			cfg:     Config{LLMProvider: ProviderOpenAI, StoreBackend: BackendMemory},
			wantErr: true,
		},
		{
			name:    "groq with key",
			cfg:     Config{LLMProvider: ProviderGroq, GroqAPIKey: "k", StoreBackend: BackendMemory},
			wantErr: false,
		},
		{
			name:    "anthropic without key",
			cfg:     Config{LLMProvider: ProviderAnthropic, StoreBackend: BackendMemory},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     Config{LLMProvider: "cohere", StoreBackend: BackendMemory},
			wantErr: true,
		},
		{
			name:    "postgres without dsn",
			cfg:     Config{LLMProvider: ProviderOpenAI, OpenAIAPIKey: "k", StoreBackend: BackendPostgres},
			wantErr: true,
		},
		{
			name:    "mongo with uri",
			cfg:     Config{LLMProvider: ProviderOpenAI, OpenAIAPIKey: "k", StoreBackend: BackendMongo, MongoURI: "mongodb://localhost"},
			wantErr: false,
		},
		{
			name:    "negative max turns",
			cfg:     Config{LLMProvider: ProviderOpenAI, OpenAIAPIKey: "k", StoreBackend: BackendMemory, MaxTurns: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
