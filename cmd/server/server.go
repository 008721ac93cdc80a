package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socratic/config"
	"socratic/db"
	"socratic/handlers"
	"socratic/services"
	"socratic/services/catalog"
	"socratic/services/docindex"
	"socratic/services/llm"
	"socratic/services/prompt"
	"socratic/services/tutor"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	defaultVariant, err := prompt.ParseVariant(cfg.DefaultVariant)
	if err != nil {
		log.Fatalf("Invalid DEFAULT_VARIANT: %v", err)
	}

	model, err := llm.NewModel(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize language model: %v", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize conversation store: %v", err)
	}
	defer repo.Close()

	var refs tutor.ReferenceSource
	if cfg.PineconeAPIKey != "" && cfg.OpenAIAPIKey != "" {
		embeddingClient, err := llm.NewEmbeddingClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize embedding client: %v", err)
		}
		index, err := docindex.NewService(cfg.PineconeAPIKey, cfg.PineconeIndexName, embeddingClient)
		if err != nil {
			log.Fatalf("Failed to initialize reference index: %v", err)
		}
		refs = index
	} else {
		log.Printf("[INFO] Reference grounding disabled (PINECONE_API_KEY and OPENAI_API_KEY both required)")
	}

	var snapshots tutor.SnapshotStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		snapshots = tutor.NewRedisSnapshotStore(client, cfg.SessionIdleTTL)
		log.Printf("[INFO] Session snapshots enabled")
	}

	registry := tutor.NewRegistry(tutor.RegistryConfig{
		LLM:         model,
		UseCases:    tutor.NewUseCaseGenerator(model, refs, cfg.LLMTemperature),
		MaxTurns:    cfg.MaxTurns,
		Temperature: cfg.LLMTemperature,
		IdleTTL:     cfg.SessionIdleTTL,
		Snapshots:   snapshots,
	})
	go registry.Run(ctx)

	evaluator := tutor.NewEvaluator(model, refs)
	conversationService := services.NewConversationService(cat, registry, evaluator, repo, defaultVariant)

	router := mux.NewRouter()

	router.Use(corsMiddleware)
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	handlers.NewConversationHandler(conversationService).RegisterRoutes(router)
	handlers.NewCatalogHandler(conversationService).RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERROR] Server shutdown failed: %v", err)
		}
		registry.Clear()
	}()

	fmt.Printf("Server starting on port %s\n", cfg.Port)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func openRepository(ctx context.Context, cfg *config.Config) (db.ConversationRepository, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		repo, err := db.NewPostgresConversationRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	case config.BackendMongo:
		return db.NewMongoConversationRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		log.Printf("[WARN] Using in-memory conversation store; records are lost on restart")
		return db.NewInMemoryConversationRepository(), nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
