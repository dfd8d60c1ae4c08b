package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jinford/tube-rag/internal/core/chunk"
)

// Entry はインデックスに格納される (Chunk, EmbeddingVector) の組
type Entry struct {
	Chunk  chunk.Chunk
	Vector []float32
}

// Hit は検索結果の1件を表す
type Hit struct {
	Chunk chunk.Chunk
	Score float64
}

// Index はチャンクのEmbeddingに対する最近傍検索構造
//
// 類似度はコサイン類似度を採用する。構築時に全ベクトルをL2正規化して
// 保持し、検索時は正規化済みクエリとの内積を取る（単位ベクトル同士の
// 内積はコサイン類似度に一致する）。構築後は一切変更されないため、
// 任意個の検索が同期なしで並行実行できる。
type Index struct {
	entries   []Entry
	dimension int
}

// Build はチャンク列からインデックスを構築する
//
// Embeddingは元のチャンク順に生成される。1件でも失敗した場合は
// ErrEmbeddingProvider で全体を中断し、部分的なインデックスは公開しない。
func Build(ctx context.Context, embedder Embedder, chunks []chunk.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}

	batchSize := embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingProvider, len(texts), len(batch))
		}
		vectors = append(vectors, batch...)
	}

	return New(chunks, vectors)
}

// New は計算済みのベクトル列からインデックスを構築する
// 永続化されたインデックスデータの復元に使用する
func New(chunks []chunk.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunk count %d does not match vector count %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}

	dimension := len(vectors[0])
	entries := make([]Entry, 0, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dimension {
			return nil, fmt.Errorf("vector dimension mismatch at ordinal %d: %d != %d", c.Ordinal, len(vectors[i]), dimension)
		}
		entries = append(entries, Entry{Chunk: c, Vector: normalize(vectors[i])})
	}

	return &Index{entries: entries, dimension: dimension}, nil
}

// Search はクエリベクトルに類似するチャンクを最大 k 件返す
//
// 結果は類似度の降順、同点の場合はチャンク連番の昇順で並ぶ（決定的）。
func (idx *Index) Search(vector []float32, k int) []Hit {
	if k <= 0 || len(idx.entries) == 0 {
		return nil
	}

	query := normalize(vector)

	hits := make([]Hit, 0, len(idx.entries))
	for _, e := range idx.entries {
		hits = append(hits, Hit{Chunk: e.Chunk, Score: dot(query, e.Vector)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Ordinal < hits[j].Chunk.Ordinal
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Size はインデックスに含まれるチャンク数を返す
func (idx *Index) Size() int {
	return len(idx.entries)
}

// Dimension はベクトル次元数を返す
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Entries は格納されている全エントリを返す（永続化用）
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// normalize はベクトルをL2正規化したコピーを返す
// ゼロベクトルはそのまま返す
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot は2つのベクトルの内積を返す
func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
