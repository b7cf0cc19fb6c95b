package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/converseai/converse/internal/chat"
	"github.com/converseai/converse/internal/config"
	"github.com/converseai/converse/internal/conversation"
	"github.com/converseai/converse/internal/db"
	"github.com/converseai/converse/internal/embeddings"
	"github.com/converseai/converse/internal/gateway"
	"github.com/converseai/converse/internal/handlers"
	"github.com/converseai/converse/internal/healthcheck"
	"github.com/converseai/converse/internal/inbound"
	"github.com/converseai/converse/internal/knowledge"
	"github.com/converseai/converse/internal/logger"
	"github.com/converseai/converse/internal/pipeline"
	"github.com/converseai/converse/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			providePGStore,
			provideEmbedder,
			provideKnowledgeStore,
			provideRetriever,
			provideLLM,
			provideGenerator,
			provideGateway,
			provideRunner,
			provideScheduler,
			provideHealthRunner,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideMessageHandler),
			provideServerHandler(provideConversationHandler),
			provideServerHandler(provideKnowledgeHandler),
			provideServerHandler(provideHealthHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func runMigrate() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return db.Migrate(cfg.Postgres)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.New(cfg.Log)
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func providePGStore(log *slog.Logger, pool *pgxpool.Pool) *conversation.PGStore {
	return conversation.NewPGStore(log, pool)
}

func provideEmbedder(log *slog.Logger, cfg config.Config) *embeddings.OllamaEmbedder {
	return embeddings.NewOllamaEmbedder(log, cfg.Ollama.BaseURL, cfg.Ollama.EmbeddingModel,
		cfg.Ollama.EmbeddingDimensions, time.Duration(cfg.Ollama.TimeoutSeconds)*time.Second)
}

func provideKnowledgeStore(log *slog.Logger, cfg config.Config, embedder *embeddings.OllamaEmbedder) (*knowledge.QdrantStore, error) {
	store, err := knowledge.NewQdrantStore(log, cfg.Qdrant, embedder)
	if err != nil {
		return nil, fmt.Errorf("qdrant init: %w", err)
	}
	return store, nil
}

func provideRetriever(log *slog.Logger, cfg config.Config, embedder *embeddings.OllamaEmbedder, store *knowledge.QdrantStore) *knowledge.Retriever {
	return knowledge.NewRetriever(log, embedder, store, cfg.Pipeline.ContextTopK)
}

func provideLLM(log *slog.Logger, cfg config.Config) *chat.OllamaClient {
	return chat.NewOllamaClient(log, cfg.Ollama.BaseURL, cfg.Ollama.ChatModel,
		cfg.Ollama.Temperature, time.Duration(cfg.Ollama.TimeoutSeconds)*time.Second)
}

func provideGenerator(log *slog.Logger, llm *chat.OllamaClient) *chat.Generator {
	return chat.NewGenerator(log, llm)
}

func provideGateway(log *slog.Logger, cfg config.Config) *gateway.Client {
	return gateway.NewClient(log, cfg.Gateway.BaseURL, cfg.Gateway.APIToken, cfg.Gateway.CountryCode,
		cfg.Gateway.TextChunkLimit, time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)
}

func provideRunner(log *slog.Logger, cfg config.Config, store *conversation.PGStore, retriever *knowledge.Retriever, generator *chat.Generator, gw *gateway.Client) *pipeline.Runner {
	var fallback conversation.Store
	if cfg.Pipeline.FallbackMemoryStore {
		fallback = conversation.NewMemoryStore()
	}
	return pipeline.NewRunner(log, store, fallback, retriever, generator, gw, cfg.Pipeline.HistoryLimit)
}

func provideScheduler(log *slog.Logger, cfg config.Config, runner *pipeline.Runner) *pipeline.Scheduler {
	return pipeline.NewScheduler(log, runner, pipeline.NewInflight(),
		time.Duration(cfg.Pipeline.RunTimeoutSeconds)*time.Second)
}

func provideHealthRunner(log *slog.Logger, store *conversation.PGStore, knowledgeStore *knowledge.QdrantStore, llm *chat.OllamaClient, gw *gateway.Client) *healthcheck.Runner {
	return healthcheck.NewRunner(log, 5*time.Second,
		healthcheck.CheckerFunc{ID: "persistence", Fn: store.Healthy},
		healthcheck.CheckerFunc{ID: "vector_store", Fn: knowledgeStore.Healthy},
		healthcheck.CheckerFunc{ID: "generation", Fn: llm.Healthy},
		healthcheck.CheckerFunc{ID: "gateway", Fn: gw.TestConnection},
	)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideWebhookHandler(log *slog.Logger, scheduler *pipeline.Scheduler) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, inbound.NewWTSNormalizer(log), scheduler)
}

func provideMessageHandler(log *slog.Logger, scheduler *pipeline.Scheduler) *handlers.MessageHandler {
	return handlers.NewMessageHandler(log, scheduler)
}

func provideConversationHandler(log *slog.Logger, cfg config.Config, store *conversation.PGStore) *handlers.ConversationHandler {
	return handlers.NewConversationHandler(log, store, cfg.Pipeline.HistoryLimit)
}

func provideKnowledgeHandler(log *slog.Logger, store *knowledge.QdrantStore) *handlers.KnowledgeHandler {
	return handlers.NewKnowledgeHandler(log, store)
}

func provideHealthHandler(log *slog.Logger, runner *healthcheck.Runner) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log, runner)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Handlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, srv *server.Server, scheduler *pipeline.Scheduler, knowledgeStore *knowledge.QdrantStore, health *healthcheck.Runner, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.Migrate(cfg.Postgres); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := knowledgeStore.EnsureCollection(ctx); err != nil {
				return fmt.Errorf("ensure collection: %w", err)
			}

			// Dependency probes are advisory at startup; the service comes up
			// and reports them on /health.
			result := health.Run(ctx)
			if !result.Healthy {
				log.Warn("starting with unhealthy dependencies", slog.Any("components", result.Components))
			}

			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			log.Info("server started", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			// Let in-flight pipeline runs finish before the pool closes.
			return scheduler.Drain(ctx)
		},
	})
}
