package index

import (
	"context"
	"errors"
)

// ErrEmbeddingProvider はEmbedding生成の外部呼び出しに失敗した場合のエラー
var ErrEmbeddingProvider = errors.New("embedding provider failure")

// Embedder はテキストをベクトル表現に変換する能力インターフェース
// インデックス構築と質問の埋め込みで同一の実装を使用しなければならない
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed はバッチでEmbeddingを生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize はバッチ処理の最大サイズを返す
	MaxBatchSize() int
}
