package status

// State は取り込みパイプラインの進行状態を表す閉じた列挙
type State string

const (
	// StatePending は取り込み開始待ち
	StatePending State = "pending"
	// StateFetching は字幕取得中
	StateFetching State = "fetching"
	// StateChunking はテキスト分割中
	StateChunking State = "chunking"
	// StateEmbedding はEmbedding生成・インデックス構築中
	StateEmbedding State = "embedding"
	// StateReady は質問応答が可能な状態
	StateReady State = "ready"
	// StateFailed は失敗（終端状態）
	StateFailed State = "failed"
)

// transitions は許可される前方遷移の表
// ここに無い遷移はすべて拒否される
var transitions = map[State][]State{
	StatePending:   {StateFetching, StateFailed},
	StateFetching:  {StateChunking, StateFailed},
	StateChunking:  {StateEmbedding, StateFailed},
	StateEmbedding: {StateReady, StateFailed},
	StateReady:     {},
	StateFailed:    {},
}

// Terminal は終端状態（READY / FAILED）かどうかを返す
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Valid は定義済みの状態かどうかを返す
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// canTransition は from から to への遷移が表に含まれるかを返す
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
