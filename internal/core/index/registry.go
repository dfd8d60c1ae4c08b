package index

import (
	"sync"
)

// Registry はセッションごとの公開済みインデックスを保持する
//
// Publish は参照の差し替えのみを行うため、再構築されたインデックスは
// 完成後に一度の可視な更新として置き換わる。取得済みの旧インデックスを
// 読んでいる検索は影響を受けない（インデックス自体が不変のため）。
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewRegistry は新しい Registry を作成する
func NewRegistry() *Registry {
	return &Registry{
		indexes: make(map[string]*Index),
	}
}

// Get はセッションの公開済みインデックスを返す
func (r *Registry) Get(sessionID string) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indexes[sessionID]
	return idx, ok
}

// Publish はセッションのインデックスを原子的に差し替える
func (r *Registry) Publish(sessionID string, idx *Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes[sessionID] = idx
}

// Drop はセッションのインデックスを取り除く
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indexes, sessionID)
}
