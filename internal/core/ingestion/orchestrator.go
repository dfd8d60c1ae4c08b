package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/tube-rag/internal/core/chunk"
	"github.com/jinford/tube-rag/internal/core/index"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/status"
	"github.com/jinford/tube-rag/internal/core/transcript"
)

// ErrRunInProgress は非終端状態のランが進行中のセッションへの再投入のエラー
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Runner は取り込みランを非同期に実行する実行基盤インターフェース
type Runner interface {
	// Submit はタスクの実行を予約する
	// タスクはいずれかのゴルーチンで高々一度実行される
	Submit(task func(ctx context.Context)) error
}

// Orchestrator は取り込みパイプライン全体を進行させる
//
// 1セッションにつき同時に1ランのみ実行する（状態トラッカーの開始ガード）。
// インデックスはランの完走後にのみレジストリへ公開されるため、
// 進行中のランが部分的な検索結果を見せることはない。
type Orchestrator struct {
	fetcher  transcript.Fetcher
	chunker  *chunk.Chunker
	embedder index.Embedder
	store    session.Store
	tracker  *status.Tracker
	registry *index.Registry
	runner   Runner
	logger   *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger は Orchestrator にロガーを設定する
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator は新しい Orchestrator を作成する
func NewOrchestrator(
	fetcher transcript.Fetcher,
	chunker *chunk.Chunker,
	embedder index.Embedder,
	store session.Store,
	tracker *status.Tracker,
	registry *index.Registry,
	runner Runner,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		fetcher:  fetcher,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		tracker:  tracker,
		registry: registry,
		runner:   runner,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	return o
}

// Submit はセッションの取り込みランを予約する
//
// 非終端状態のランが進行中の場合は ErrRunInProgress を返して何もしない。
// 終端状態（READY / FAILED）からの再投入は既存の成果物を破棄し、
// パイプライン全体をやり直す。
func (o *Orchestrator) Submit(ctx context.Context, sess *session.Session) error {
	if !o.tracker.Begin(ctx, sess.ID) {
		return fmt.Errorf("%w: session %s", ErrRunInProgress, sess.ID)
	}

	// 再投入に備えて古い成果物を先に破棄する
	o.registry.Drop(sess.ID)
	if err := o.store.DeleteArtifacts(ctx, sess.ID); err != nil {
		o.tracker.Fail(ctx, sess.ID, "failed to reset previous artifacts")
		return fmt.Errorf("failed to delete artifacts: %w", err)
	}

	if err := o.runner.Submit(func(taskCtx context.Context) {
		o.run(taskCtx, sess)
	}); err != nil {
		o.tracker.Fail(ctx, sess.ID, "failed to schedule ingestion run")
		return fmt.Errorf("failed to submit ingestion run: %w", err)
	}

	o.logger.Info("ingestion run submitted",
		"sessionID", sess.ID,
		"videoID", sess.VideoID,
	)
	return nil
}

// RunSync は取り込みランを同期実行する（CLIのワンショット用）
func (o *Orchestrator) RunSync(ctx context.Context, sess *session.Session) error {
	if !o.tracker.Begin(ctx, sess.ID) {
		return fmt.Errorf("%w: session %s", ErrRunInProgress, sess.ID)
	}

	o.registry.Drop(sess.ID)
	if err := o.store.DeleteArtifacts(ctx, sess.ID); err != nil {
		o.tracker.Fail(ctx, sess.ID, "failed to reset previous artifacts")
		return fmt.Errorf("failed to delete artifacts: %w", err)
	}

	return o.run(ctx, sess)
}

// run はパイプラインを先頭から最後まで実行する
func (o *Orchestrator) run(ctx context.Context, sess *session.Session) error {
	startTime := time.Now()

	// 1. トランスクリプト取得
	if err := o.tracker.Transition(ctx, sess.ID, status.StateFetching, "fetching transcript"); err != nil {
		return err
	}

	tr, err := o.fetcher.Fetch(ctx, sess.VideoID)
	if err != nil {
		return o.fail(ctx, sess.ID, err)
	}

	if err := o.store.SaveTranscript(ctx, sess.ID, tr); err != nil {
		return o.fail(ctx, sess.ID, fmt.Errorf("failed to save transcript: %w", err))
	}

	o.logger.Info("transcript fetched",
		"sessionID", sess.ID,
		"videoID", sess.VideoID,
		"segments", len(tr.Segments),
		"textLength", len([]rune(tr.FullText)),
	)

	// 2. チャンク分割
	if err := o.tracker.Transition(ctx, sess.ID, status.StateChunking, "splitting transcript into chunks"); err != nil {
		return err
	}

	chunks := o.chunker.Split(tr.FullText)
	for i := range chunks {
		chunks[i].StartTime = tr.SegmentAt(chunks[i].StartOffset).Start
	}

	o.logger.Info("transcript chunked",
		"sessionID", sess.ID,
		"chunks", len(chunks),
	)

	// 3. Embedding生成とインデックス構築
	if err := o.tracker.Transition(ctx, sess.ID, status.StateEmbedding, "building embedding index"); err != nil {
		return err
	}

	idx, err := index.Build(ctx, o.embedder, chunks)
	if err != nil {
		return o.fail(ctx, sess.ID, err)
	}

	vectors := make([][]float32, 0, idx.Size())
	for _, entry := range idx.Entries() {
		vectors = append(vectors, entry.Vector)
	}
	if err := o.store.SaveIndexData(ctx, sess.ID, session.IndexData{Chunks: chunks, Vectors: vectors}); err != nil {
		return o.fail(ctx, sess.ID, fmt.Errorf("failed to save index data: %w", err))
	}

	// 4. 公開（完成したインデックスのみがここに到達する）
	o.registry.Publish(sess.ID, idx)
	if err := o.tracker.Transition(ctx, sess.ID, status.StateReady, "ready to answer questions"); err != nil {
		return err
	}

	o.logger.Info("ingestion run completed",
		"sessionID", sess.ID,
		"videoID", sess.VideoID,
		"chunks", len(chunks),
		"duration", time.Since(startTime),
	)
	return nil
}

// Restore は永続化済みインデックスを起動時に再公開する
// インデックスデータを持つセッションを READY として登録し直す
func (o *Orchestrator) Restore(ctx context.Context, limit int) error {
	sessions, err := o.store.ListRecentSessions(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	restored := 0
	for _, sess := range sessions {
		dataOpt, err := o.store.LoadIndexData(ctx, sess.ID)
		if err != nil {
			o.logger.Warn("failed to load index data",
				"sessionID", sess.ID,
				"error", err,
			)
			continue
		}
		data, ok := dataOpt.Get()
		if !ok {
			continue
		}

		idx, err := index.New(data.Chunks, data.Vectors)
		if err != nil {
			o.logger.Warn("failed to rebuild index from stored data",
				"sessionID", sess.ID,
				"error", err,
			)
			continue
		}

		o.registry.Publish(sess.ID, idx)
		o.tracker.RestoreReady(sess.ID, "ready to answer questions")
		restored++
	}

	o.logger.Info("restored persisted indexes",
		"sessions", len(sessions),
		"restored", restored,
	)
	return nil
}

// fail は失敗を分類したメッセージとともに FAILED へ遷移させる
func (o *Orchestrator) fail(ctx context.Context, sessionID string, err error) error {
	o.tracker.Fail(ctx, sessionID, classifyFailure(err))
	o.logger.Error("ingestion run failed",
		"sessionID", sessionID,
		"error", err,
	)
	return err
}

// classifyFailure はパイプラインの失敗を利用者向けメッセージに変換する
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, transcript.ErrVideoNotFound):
		return "video not found or not accessible"
	case errors.Is(err, transcript.ErrNoCaptions):
		return "no captions are available for this video"
	case errors.Is(err, transcript.ErrTransientFetch):
		return "temporary error fetching the transcript; please retry"
	case errors.Is(err, index.ErrEmbeddingProvider):
		return "embedding provider failed while building the index"
	default:
		return "ingestion failed unexpectedly"
	}
}
