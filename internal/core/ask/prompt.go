package ask

import (
	"fmt"
	"strings"

	"github.com/jinford/tube-rag/internal/core/index"
)

// TokenCounter はテキストのトークン数を数える能力インターフェース
type TokenCounter interface {
	CountTokens(text string) int
}

// PromptBuilder はRAG質問応答用のプロンプトを構築する
//
// コンテキストは類似度の高いチャンクから順に詰め、合計トークン数が
// maxContextTokens を超えないように打ち切る。ただし先頭のチャンクは
// 単独で超過していても必ず含める（コンテキストが空の回答を防ぐ）。
type PromptBuilder struct {
	counter          TokenCounter
	maxContextTokens int
}

// NewPromptBuilder は新しい PromptBuilder を作成する
func NewPromptBuilder(counter TokenCounter, maxContextTokens int) (*PromptBuilder, error) {
	if counter == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if maxContextTokens <= 0 {
		return nil, fmt.Errorf("max context tokens must be positive, got %d", maxContextTokens)
	}
	return &PromptBuilder{
		counter:          counter,
		maxContextTokens: maxContextTokens,
	}, nil
}

// Build は検索結果からプロンプトと採用したコンテキスト文字列を構築する
// 戻り値のコンテキスト文字列は QARecord.ContextUsed として保存される
func (b *PromptBuilder) Build(question string, hits []index.Hit) (prompt string, contextUsed string) {
	var blocks []string
	used := 0
	for i, hit := range hits {
		block := fmt.Sprintf("[%s] %s", formatTimecode(hit.Chunk.StartTime), hit.Chunk.Text)
		tokens := b.counter.CountTokens(block)
		if i > 0 && used+tokens > b.maxContextTokens {
			break
		}
		blocks = append(blocks, block)
		used += tokens
	}
	contextUsed = strings.Join(blocks, "\n\n")

	var sb strings.Builder
	sb.WriteString("You are a helpful assistant that answers questions about a YouTube video using its transcript.\n\n")
	sb.WriteString("## Guidelines\n")
	sb.WriteString("- Answer ONLY from the transcript context below\n")
	sb.WriteString("- If the context is insufficient to answer, just say you don't know\n")
	sb.WriteString("- Mention the [MM:SS] timecodes of the excerpts you relied on when it helps the reader\n\n")

	sb.WriteString("## Transcript context\n")
	if contextUsed != "" {
		sb.WriteString(contextUsed)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("(no relevant excerpts found)\n\n")
	}

	sb.WriteString("## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	sb.WriteString("## Answer\n")

	return sb.String(), contextUsed
}

// formatTimecode は秒数を MM:SS（1時間以上は H:MM:SS）形式に整形する
func formatTimecode(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
