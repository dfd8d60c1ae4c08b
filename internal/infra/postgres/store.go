package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/samber/mo"

	"github.com/jinford/tube-rag/internal/core/chunk"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/transcript"
)

// schema はストアが使用するテーブル定義
// Migrate が起動時に適用する（既存のテーブルには影響しない）
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    video_id   TEXT NOT NULL,
    video_url  TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcripts (
    session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
    video_id   TEXT NOT NULL,
    segments   JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
    session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    ordinal      INT NOT NULL,
    content      TEXT NOT NULL,
    start_offset INT NOT NULL,
    end_offset   INT NOT NULL,
    start_time   DOUBLE PRECISION NOT NULL,
    embedding    VECTOR NOT NULL,
    PRIMARY KEY (session_id, ordinal)
);

CREATE TABLE IF NOT EXISTS qa_records (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    question     TEXT NOT NULL,
    answer       TEXT NOT NULL,
    context_used TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS qa_records_session_idx ON qa_records (session_id, created_at);

CREATE TABLE IF NOT EXISTS processing_states (
    session_id TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    message    TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store は PostgreSQL + pgvector を使用する session.Store 実装
type Store struct {
	pool *pgxpool.Pool
}

// NewStore は接続プールを作成して Store を返す
// pgvectorの型をプールの全接続に登録する
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate はスキーマを適用する
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close は接続プールを閉じる
func (s *Store) Close() {
	s.pool.Close()
}

// CreateSession はセッションを保存する
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, video_id, video_url, created_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.VideoID, sess.VideoURL, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession はセッションを取得する
func (s *Store) GetSession(ctx context.Context, id string) (mo.Option[*session.Session], error) {
	var sess session.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, video_id, video_url, created_at FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.VideoID, &sess.VideoURL, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*session.Session](), nil
		}
		return mo.None[*session.Session](), fmt.Errorf("failed to get session: %w", err)
	}
	return mo.Some(&sess), nil
}

// ListRecentSessions は新しい順にセッションを返す
func (s *Store) ListRecentSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_id, video_url, created_at FROM sessions ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(&sess.ID, &sess.VideoID, &sess.VideoURL, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// SaveTranscript はトランスクリプトを保存する
// セグメント列をJSONBとして保持し、本文とオフセットは読み出し時に再構築する
func (s *Store) SaveTranscript(ctx context.Context, sessionID string, tr *transcript.Transcript) error {
	segments, err := json.Marshal(tr.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO transcripts (session_id, video_id, segments) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET video_id = EXCLUDED.video_id, segments = EXCLUDED.segments`,
		sessionID, tr.VideoID, segments,
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// GetTranscript はトランスクリプトを取得する
func (s *Store) GetTranscript(ctx context.Context, sessionID string) (mo.Option[*transcript.Transcript], error) {
	var videoID string
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT video_id, segments FROM transcripts WHERE session_id = $1`,
		sessionID,
	).Scan(&videoID, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*transcript.Transcript](), nil
		}
		return mo.None[*transcript.Transcript](), fmt.Errorf("failed to get transcript: %w", err)
	}

	var segments []transcript.Segment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return mo.None[*transcript.Transcript](), fmt.Errorf("failed to unmarshal segments: %w", err)
	}

	return mo.Some(transcript.New(videoID, segments)), nil
}

// SaveIndexData はチャンクとEmbeddingベクトルを保存する
// 同一セッションの既存チャンクは1トランザクション内で置き換える
func (s *Store) SaveIndexData(ctx context.Context, sessionID string, data session.IndexData) error {
	if len(data.Chunks) != len(data.Vectors) {
		return fmt.Errorf("chunk count %d does not match vector count %d", len(data.Chunks), len(data.Vectors))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	for i, c := range data.Chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (session_id, ordinal, content, start_offset, end_offset, start_time, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sessionID, c.Ordinal, c.Text, c.StartOffset, c.EndOffset, c.StartTime,
			pgvector.NewVector(data.Vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Ordinal, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadIndexData は保存済みのインデックス構成要素を取得する
func (s *Store) LoadIndexData(ctx context.Context, sessionID string) (mo.Option[session.IndexData], error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ordinal, content, start_offset, end_offset, start_time, embedding
		 FROM chunks WHERE session_id = $1 ORDER BY ordinal`,
		sessionID,
	)
	if err != nil {
		return mo.None[session.IndexData](), fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var data session.IndexData
	for rows.Next() {
		var c chunk.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.Ordinal, &c.Text, &c.StartOffset, &c.EndOffset, &c.StartTime, &vec); err != nil {
			return mo.None[session.IndexData](), fmt.Errorf("failed to scan chunk: %w", err)
		}
		data.Chunks = append(data.Chunks, c)
		data.Vectors = append(data.Vectors, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return mo.None[session.IndexData](), fmt.Errorf("failed to iterate chunks: %w", err)
	}

	if len(data.Chunks) == 0 {
		return mo.None[session.IndexData](), nil
	}
	return mo.Some(data), nil
}

// DeleteArtifacts はトランスクリプトとチャンクを破棄する
// セッション本体とチャット履歴は残す
func (s *Store) DeleteArtifacts(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transcripts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendQARecord はチャット履歴の末尾に1件追記する
func (s *Store) AppendQARecord(ctx context.Context, rec *session.QARecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO qa_records (id, session_id, question, answer, context_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SessionID, rec.Question, rec.Answer, rec.ContextUsed, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append qa record: %w", err)
	}
	return nil
}

// ListQARecords はセッションのチャット履歴を作成順に返す
func (s *Store) ListQARecords(ctx context.Context, sessionID string) ([]*session.QARecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, question, answer, context_used, created_at
		 FROM qa_records WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list qa records: %w", err)
	}
	defer rows.Close()

	var records []*session.QARecord
	for rows.Next() {
		var rec session.QARecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Question, &rec.Answer, &rec.ContextUsed, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan qa record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate qa records: %w", err)
	}
	return records, nil
}

// SaveProcessingState は処理状態を保存する
func (s *Store) SaveProcessingState(ctx context.Context, sessionID string, state string, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_states (session_id, state, message, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id) DO UPDATE SET state = EXCLUDED.state, message = EXCLUDED.message, updated_at = now()`,
		sessionID, state, message,
	)
	if err != nil {
		return fmt.Errorf("failed to save processing state: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ session.Store = (*Store)(nil)
