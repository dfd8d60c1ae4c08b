package openai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/tube-rag/internal/core/ask"
)

// TokenCounter は tiktoken を利用したトークンカウンタ
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter は新しい TokenCounter を作成する
// cl100k_baseエンコーディングを使用する（text-embedding-3-small / gpt-4o系と互換）
func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}

	return &TokenCounter{encoding: enc}, nil
}

// CountTokens はテキストのトークン数を返す
func (c *TokenCounter) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// インターフェース実装の確認
var _ ask.TokenCounter = (*TokenCounter)(nil)
