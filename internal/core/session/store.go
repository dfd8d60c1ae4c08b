package session

import (
	"context"
	"errors"

	"github.com/samber/mo"

	"github.com/jinford/tube-rag/internal/core/chunk"
	"github.com/jinford/tube-rag/internal/core/transcript"
)

// ErrNotFound は存在しないセッションへの操作のエラー
var ErrNotFound = errors.New("session not found")

// IndexData は永続化されるインデックスの構成要素
// Vectors[i] は Chunks[i] に対応する
type IndexData struct {
	Chunks  []chunk.Chunk
	Vectors [][]float32
}

// Store はセッションと生成物の永続化を統合するインターフェース
//
// 取り込みランが生成する成果物（Transcript / IndexData）はセッション単位で
// 高々1つ。再取り込み時は DeleteArtifacts で破棄してから書き直す。
type Store interface {
	// CreateSession はセッションを保存する
	CreateSession(ctx context.Context, sess *Session) error

	// GetSession はセッションを取得する（存在しない場合は None）
	GetSession(ctx context.Context, id string) (mo.Option[*Session], error)

	// ListRecentSessions は新しい順にセッションを返す
	ListRecentSessions(ctx context.Context, limit int) ([]*Session, error)

	// SaveTranscript はトランスクリプトを保存する
	SaveTranscript(ctx context.Context, sessionID string, tr *transcript.Transcript) error

	// GetTranscript はトランスクリプトを取得する（未生成の場合は None）
	GetTranscript(ctx context.Context, sessionID string) (mo.Option[*transcript.Transcript], error)

	// SaveIndexData はチャンクとEmbeddingベクトルを保存する
	SaveIndexData(ctx context.Context, sessionID string, data IndexData) error

	// LoadIndexData は保存済みのインデックス構成要素を取得する（未生成の場合は None）
	LoadIndexData(ctx context.Context, sessionID string) (mo.Option[IndexData], error)

	// DeleteArtifacts はトランスクリプトとインデックスデータを破棄する
	// セッション本体とチャット履歴は残す
	DeleteArtifacts(ctx context.Context, sessionID string) error

	// AppendQARecord はチャット履歴の末尾に1件追記する
	AppendQARecord(ctx context.Context, rec *QARecord) error

	// ListQARecords はセッションのチャット履歴を作成順に返す
	ListQARecords(ctx context.Context, sessionID string) ([]*QARecord, error)

	// SaveProcessingState は処理状態を保存する（status.Persister を満たす）
	SaveProcessingState(ctx context.Context, sessionID string, state string, message string) error
}
