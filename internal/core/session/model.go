package session

import (
	"time"
)

// Session は1本の動画の処理とチャット履歴を束ねる単位を表す
// 作成後は不変
type Session struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoID"`
	VideoURL  string    `json:"videoURL"`
	CreatedAt time.Time `json:"createdAt"`
}

// QARecord は1往復の質問と回答を表す
// Query Engine が成功時にのみ追記し、作成順に並ぶ
type QARecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionID"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	ContextUsed string    `json:"contextUsed,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
