package jobs

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/jinford/tube-rag/internal/core/ingestion"
)

// ErrRunnerClosed は停止済みランナーへの投入のエラー
var ErrRunnerClosed = errors.New("runner is closed")

// DefaultMaxWorkers はデフォルトの最大同時実行数
const DefaultMaxWorkers = 4

// Runner はゴルーチンで取り込みランを実行する ingestion.Runner 実装
// 同時実行数はセマフォで制限し、タスク内のpanicはログに変換する
type Runner struct {
	sem    chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

type RunnerOption func(*Runner)

// WithRunnerLogger は Runner にロガーを設定する
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner は最大 maxWorkers 並列の Runner を作成する
func NewRunner(maxWorkers int, opts ...RunnerOption) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	r := &Runner{
		sem:    make(chan struct{}, maxWorkers),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Submit はタスクの実行を予約する
// 空きワーカーが無い場合はゴルーチン内で空きを待つため、呼び出しはブロックしない
func (r *Runner) Submit(task func(ctx context.Context)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("ingestion task panicked",
					"panic", rec,
					"stack", string(debug.Stack()),
				)
			}
		}()

		task(context.Background())
	}()

	return nil
}

// Shutdown は新規投入を締め切り、実行中のタスクの完了を待つ
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// インターフェース実装の確認
var _ ingestion.Runner = (*Runner)(nil)
