package ask

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	SessionID string // 対象セッションID
	Question  string // ユーザーの質問文
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	Answer  string            // LLMによる回答
	Sources []SourceReference // 回答の根拠としたチャンク情報
}

// SourceReference は回答の根拠となったトランスクリプト断片を表す
type SourceReference struct {
	Ordinal   int     // チャンク連番
	StartTime float64 // 動画内の開始秒
	Score     float64 // 類似度スコア
}
