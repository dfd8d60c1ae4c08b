package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/mo"

	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/transcript"
)

// Store はすべてをプロセス内に保持する session.Store 実装
// データベース無しでの起動とテストに使用する
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*session.Session
	transcripts map[string]*transcript.Transcript
	indexData   map[string]session.IndexData
	records     map[string][]*session.QARecord
	states      map[string]processingState
}

type processingState struct {
	State   string
	Message string
}

// NewStore は新しい Store を作成する
func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]*session.Session),
		transcripts: make(map[string]*transcript.Transcript),
		indexData:   make(map[string]session.IndexData),
		records:     make(map[string][]*session.QARecord),
		states:      make(map[string]processingState),
	}
}

// CreateSession はセッションを保存する
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session already exists: %s", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession はセッションを取得する
func (s *Store) GetSession(ctx context.Context, id string) (mo.Option[*session.Session], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[id]; ok {
		return mo.Some(sess), nil
	}
	return mo.None[*session.Session](), nil
}

// ListRecentSessions は新しい順にセッションを返す
func (s *Store) ListRecentSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveTranscript はトランスクリプトを保存する
func (s *Store) SaveTranscript(ctx context.Context, sessionID string, tr *transcript.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[sessionID] = tr
	return nil
}

// GetTranscript はトランスクリプトを取得する
func (s *Store) GetTranscript(ctx context.Context, sessionID string) (mo.Option[*transcript.Transcript], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tr, ok := s.transcripts[sessionID]; ok {
		return mo.Some(tr), nil
	}
	return mo.None[*transcript.Transcript](), nil
}

// SaveIndexData はチャンクとEmbeddingベクトルを保存する
func (s *Store) SaveIndexData(ctx context.Context, sessionID string, data session.IndexData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexData[sessionID] = data
	return nil
}

// LoadIndexData は保存済みのインデックス構成要素を取得する
func (s *Store) LoadIndexData(ctx context.Context, sessionID string) (mo.Option[session.IndexData], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if data, ok := s.indexData[sessionID]; ok {
		return mo.Some(data), nil
	}
	return mo.None[session.IndexData](), nil
}

// DeleteArtifacts はトランスクリプトとインデックスデータを破棄する
// セッション本体とチャット履歴は残す
func (s *Store) DeleteArtifacts(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, sessionID)
	delete(s.indexData, sessionID)
	return nil
}

// AppendQARecord はチャット履歴の末尾に1件追記する
func (s *Store) AppendQARecord(ctx context.Context, rec *session.QARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[rec.SessionID]; !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, rec.SessionID)
	}
	s.records[rec.SessionID] = append(s.records[rec.SessionID], rec)
	return nil
}

// ListQARecords はセッションのチャット履歴を作成順に返す
func (s *Store) ListQARecords(ctx context.Context, sessionID string) ([]*session.QARecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.records[sessionID]
	out := make([]*session.QARecord, len(records))
	copy(out, records)
	return out, nil
}

// SaveProcessingState は処理状態を保存する
func (s *Store) SaveProcessingState(ctx context.Context, sessionID string, state string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = processingState{State: state, Message: message}
	return nil
}

// インターフェース実装の確認
var _ session.Store = (*Store)(nil)
