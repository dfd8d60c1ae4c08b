package chunk

import (
	"fmt"
)

const (
	// DefaultSize はデフォルトのチャンクサイズ（ルーン数）
	DefaultSize = 1000
	// DefaultOverlap はデフォルトのオーバーラップ（ルーン数）
	DefaultOverlap = 200
)

// Chunk はトランスクリプト本文の連続した断片を表す
// Chunkerが一度だけ生成し、以後は不変として扱う
type Chunk struct {
	// Ordinal はトランスクリプト内での安定した連番（0始まり）
	Ordinal int
	// Text はチャンク本文
	Text string
	// StartOffset / EndOffset は元テキスト上のルーンオフセット（半開区間）
	StartOffset int
	EndOffset   int
	// StartTime は StartOffset を含むセグメントの開始秒
	StartTime float64
}

// Chunker はテキストを固定長・オーバーラップ付きのチャンク列に分割する
// 同一の入力とパラメータに対して常に同一のチャンク列を返す（決定的）
type Chunker struct {
	size    int // チャンクサイズ（ルーン数）
	overlap int // 連続するチャンク間で重複させるルーン数
}

// NewChunker は新しい Chunker を作成する
// size は正、overlap は 0 以上 size 未満でなければならない
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split はテキストをチャンク列に分割する
//
// 連続するチャンクは常にちょうど overlap ルーン重複し、各チャンクの
// オーバーラップ部分を取り除いて連結すると元のテキストが完全に復元される。
// 末尾に1ステップ未満の端数が残る場合は最後のチャンクに吸収するため、
// 最後のチャンクだけは size を超えることがある。
// テキストが size 以下の場合はテキスト全体を唯一のチャンクとして返す。
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	step := c.size - c.overlap

	var chunks []Chunk
	start := 0
	for {
		end := start + c.size
		if end >= n || n-end < step {
			// 残りをすべて最後のチャンクにまとめる
			end = n
		}

		chunks = append(chunks, Chunk{
			Ordinal:     len(chunks),
			Text:        string(runes[start:end]),
			StartOffset: start,
			EndOffset:   end,
		})

		if end == n {
			break
		}
		start += step
	}

	return chunks
}

// Size はチャンクサイズを返す
func (c *Chunker) Size() int { return c.size }

// Overlap はオーバーラップ量を返す
func (c *Chunker) Overlap() int { return c.overlap }
