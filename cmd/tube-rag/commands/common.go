package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/tube-rag/internal/core/ask"
	"github.com/jinford/tube-rag/internal/core/chunk"
	"github.com/jinford/tube-rag/internal/core/index"
	"github.com/jinford/tube-rag/internal/core/ingestion"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/status"
	"github.com/jinford/tube-rag/internal/infra/jobs"
	"github.com/jinford/tube-rag/internal/infra/memory"
	"github.com/jinford/tube-rag/internal/infra/openai"
	"github.com/jinford/tube-rag/internal/infra/postgres"
	"github.com/jinford/tube-rag/internal/infra/youtube"
	"github.com/jinford/tube-rag/internal/platform/config"
	"github.com/jinford/tube-rag/internal/platform/logger"
)

// restoreLimit は起動時に復元するセッション数の上限
const restoreLimit = 200

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        session.Store
	Tracker      *status.Tracker
	Registry     *index.Registry
	Orchestrator *ingestion.Orchestrator
	AskService   *ask.AskService
	Runner       *jobs.Runner

	pgStore *postgres.Store
}

// NewAppContext は設定を読み込み、依存関係を組み立てて AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.FromEnv())

	ac := &AppContext{
		Config: cfg,
		Logger: appLogger,
	}

	// 永続化バックエンド
	switch cfg.Store {
	case config.StoreKindPostgres:
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.Database.User, cfg.Database.Password,
			cfg.Database.Host, cfg.Database.Port,
			cfg.Database.DBName, cfg.Database.SSLMode,
		)
		pgStore, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
		if err := pgStore.Migrate(ctx); err != nil {
			pgStore.Close()
			return nil, fmt.Errorf("スキーマ適用に失敗: %w", err)
		}
		ac.pgStore = pgStore
		ac.Store = pgStore
	default:
		ac.Store = memory.NewStore()
	}

	ac.Tracker = status.NewTracker(
		status.WithPersister(ac.Store),
		status.WithTrackerLogger(appLogger),
	)
	ac.Registry = index.NewRegistry()

	// OpenAIプロバイダ
	embedder := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	generator, err := openai.NewGenerator(cfg.OpenAI.APIKey,
		openai.WithChatModel(cfg.OpenAI.ChatModel),
	)
	if err != nil {
		return nil, err
	}
	counter, err := openai.NewTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("トークンカウンタの初期化に失敗: %w", err)
	}

	// 取り込みパイプライン
	chunker, err := chunk.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("チャンク設定が不正: %w", err)
	}
	fetcher := youtube.NewFetcher(youtube.WithFetcherLogger(appLogger))
	ac.Runner = jobs.NewRunner(cfg.Ingest.MaxWorkers, jobs.WithRunnerLogger(appLogger))

	ac.Orchestrator = ingestion.NewOrchestrator(
		fetcher, chunker, embedder,
		ac.Store, ac.Tracker, ac.Registry, ac.Runner,
		ingestion.WithOrchestratorLogger(appLogger),
	)

	// 質問応答
	prompts, err := ask.NewPromptBuilder(counter, cfg.Ingest.ContextMaxToken)
	if err != nil {
		return nil, err
	}
	ac.AskService = ask.NewAskService(
		ac.Store, ac.Tracker, ac.Registry, embedder, generator, prompts,
		ask.WithTopK(cfg.Ingest.TopK),
		ask.WithAskLogger(appLogger),
	)

	// 永続化済みインデックスの再公開
	if err := ac.Orchestrator.Restore(ctx, restoreLimit); err != nil {
		appLogger.Warn("failed to restore persisted indexes", "error", err)
	}

	return ac, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ac.Runner.Shutdown(shutdownCtx); err != nil {
		ac.Logger.Warn("runner shutdown timed out", "error", err)
	}
	if ac.pgStore != nil {
		ac.pgStore.Close()
	}
}
