package transcript

import (
	"context"
	"errors"
)

var (
	// ErrVideoNotFound は動画が存在しない場合のエラー
	ErrVideoNotFound = errors.New("video not found")

	// ErrNoCaptions は字幕が無効化されているか存在しない場合のエラー
	ErrNoCaptions = errors.New("captions are disabled or unavailable for this video")

	// ErrTransientFetch はネットワーク等の一時的な取得失敗（リトライ可能）
	ErrTransientFetch = errors.New("transient transcript fetch failure")
)

// Fetcher は動画IDから字幕を取得する能力インターフェース
// 失敗時は ErrVideoNotFound / ErrNoCaptions / ErrTransientFetch のいずれかに
// 分類されたエラーを返し、部分的な Transcript を返してはならない
type Fetcher interface {
	// Fetch は動画IDに対応する字幕を取得する
	Fetch(ctx context.Context, videoID string) (*Transcript, error)
}
