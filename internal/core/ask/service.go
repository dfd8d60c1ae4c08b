package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/tube-rag/internal/core/index"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/status"
)

var (
	// ErrNotReady はインデックスが未完成のセッションへの質問のエラー
	ErrNotReady = errors.New("session is not ready")

	// ErrGenerationProvider は回答生成の外部呼び出しに失敗した場合のエラー
	ErrGenerationProvider = errors.New("generation provider failure")
)

// Generator はプロンプトから回答を生成する能力インターフェース
type Generator interface {
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
}

// DefaultTopK はデフォルトの検索件数
const DefaultTopK = 4

// AskService は質問応答のビジネスロジックを提供する
type AskService struct {
	store     session.Store
	tracker   *status.Tracker
	registry  *index.Registry
	embedder  index.Embedder
	generator Generator
	prompts   *PromptBuilder
	topK      int
	logger    *slog.Logger
}

type AskServiceOption func(*AskService)

// WithTopK は検索で取得するチャンク数を設定する
func WithTopK(k int) AskServiceOption {
	return func(s *AskService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	store session.Store,
	tracker *status.Tracker,
	registry *index.Registry,
	embedder index.Embedder,
	generator Generator,
	prompts *PromptBuilder,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		store:     store,
		tracker:   tracker,
		registry:  registry,
		embedder:  embedder,
		generator: generator,
		prompts:   prompts,
		topK:      DefaultTopK,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問に対してRAGベースで回答を生成し、チャット履歴に追記する
//
// セッションが READY でない間は ErrNotReady を返し、質問は記録しない。
// 同じ質問が繰り返されても毎回検索と生成をやり直し、新しい履歴を追記する。
func (s *AskService) Ask(ctx context.Context, params AskParams) (*AskResult, error) {
	// 1. バリデーション
	if params.SessionID == "" {
		return nil, fmt.Errorf("sessionID is required")
	}
	if params.Question == "" {
		return nil, fmt.Errorf("question is required")
	}

	// 2. セッションの存在確認
	sessOpt, err := s.store.GetSession(ctx, params.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sessOpt.IsAbsent() {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, params.SessionID)
	}

	// 3. READY ゲート
	snap, ok := s.tracker.Get(params.SessionID)
	if !ok || snap.State != status.StateReady {
		state := "unknown"
		if ok {
			state = string(snap.State)
		}
		return nil, fmt.Errorf("%w: current state is %s", ErrNotReady, state)
	}

	idx, ok := s.registry.Get(params.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: index is not published", ErrNotReady)
	}

	// 4. 質問の埋め込みと検索
	queryVector, err := s.embedder.Embed(ctx, params.Question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrEmbeddingProvider, err)
	}

	hits := idx.Search(queryVector, s.topK)

	s.logger.Info("retrieved transcript chunks",
		"sessionID", params.SessionID,
		"hits", len(hits),
		"indexSize", idx.Size(),
	)

	// 5. プロンプト構築と回答生成
	prompt, contextUsed := s.prompts.Build(params.Question, hits)

	answer, err := s.generator.GenerateAnswer(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationProvider, err)
	}

	// 6. チャット履歴へ追記
	rec := &session.QARecord{
		ID:          uuid.NewString(),
		SessionID:   params.SessionID,
		Question:    params.Question,
		Answer:      answer,
		ContextUsed: contextUsed,
		CreatedAt:   time.Now(),
	}
	if err := s.store.AppendQARecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to append qa record: %w", err)
	}

	sources := make([]SourceReference, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, SourceReference{
			Ordinal:   hit.Chunk.Ordinal,
			StartTime: hit.Chunk.StartTime,
			Score:     hit.Score,
		})
	}

	s.logger.Info("ask completed successfully",
		"sessionID", params.SessionID,
		"answerLength", len(answer),
		"sources", len(sources),
	)

	return &AskResult{
		Answer:  answer,
		Sources: sources,
	}, nil
}

// History はセッションのチャット履歴を作成順に返す
func (s *AskService) History(ctx context.Context, sessionID string) ([]*session.QARecord, error) {
	sessOpt, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sessOpt.IsAbsent() {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}

	records, err := s.store.ListQARecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list qa records: %w", err)
	}
	return records, nil
}
