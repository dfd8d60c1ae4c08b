package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/tube-rag/internal/core/chunk"
	"github.com/jinford/tube-rag/internal/core/index"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/status"
	"github.com/jinford/tube-rag/internal/core/transcript"
)

// recordingStore は成果物と状態遷移を記録するテスト用 Store
type recordingStore struct {
	sessions    map[string]*session.Session
	transcripts map[string]*transcript.Transcript
	indexData   map[string]session.IndexData
	states      []string
	deleteCalls int
}

func newRecordingStore(sessions ...*session.Session) *recordingStore {
	st := &recordingStore{
		sessions:    make(map[string]*session.Session),
		transcripts: make(map[string]*transcript.Transcript),
		indexData:   make(map[string]session.IndexData),
	}
	for _, sess := range sessions {
		st.sessions[sess.ID] = sess
	}
	return st
}

func (s *recordingStore) CreateSession(ctx context.Context, sess *session.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *recordingStore) GetSession(ctx context.Context, id string) (mo.Option[*session.Session], error) {
	if sess, ok := s.sessions[id]; ok {
		return mo.Some(sess), nil
	}
	return mo.None[*session.Session](), nil
}

func (s *recordingStore) ListRecentSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *recordingStore) SaveTranscript(ctx context.Context, sessionID string, tr *transcript.Transcript) error {
	s.transcripts[sessionID] = tr
	return nil
}

func (s *recordingStore) GetTranscript(ctx context.Context, sessionID string) (mo.Option[*transcript.Transcript], error) {
	if tr, ok := s.transcripts[sessionID]; ok {
		return mo.Some(tr), nil
	}
	return mo.None[*transcript.Transcript](), nil
}

func (s *recordingStore) SaveIndexData(ctx context.Context, sessionID string, data session.IndexData) error {
	s.indexData[sessionID] = data
	return nil
}

func (s *recordingStore) LoadIndexData(ctx context.Context, sessionID string) (mo.Option[session.IndexData], error) {
	if data, ok := s.indexData[sessionID]; ok {
		return mo.Some(data), nil
	}
	return mo.None[session.IndexData](), nil
}

func (s *recordingStore) DeleteArtifacts(ctx context.Context, sessionID string) error {
	s.deleteCalls++
	delete(s.transcripts, sessionID)
	delete(s.indexData, sessionID)
	return nil
}

func (s *recordingStore) AppendQARecord(ctx context.Context, rec *session.QARecord) error {
	return nil
}

func (s *recordingStore) ListQARecords(ctx context.Context, sessionID string) ([]*session.QARecord, error) {
	return nil, nil
}

func (s *recordingStore) SaveProcessingState(ctx context.Context, sessionID string, state string, message string) error {
	s.states = append(s.states, state)
	return nil
}

// stubFetcher は固定のトランスクリプトまたはエラーを返すスタブ
type stubFetcher struct {
	segments []transcript.Segment
	err      error
}

func (f *stubFetcher) Fetch(ctx context.Context, videoID string) (*transcript.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return transcript.New(videoID, f.segments), nil
}

// stubEmbedder は決定的なベクトルを返すスタブ
type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (e *stubEmbedder) MaxBatchSize() int { return 100 }

// inlineRunner はタスクを Submit の中で同期実行する
type inlineRunner struct{}

func (inlineRunner) Submit(task func(ctx context.Context)) error {
	task(context.Background())
	return nil
}

// deferredRunner はタスクを溜めておき、Flush で実行する
type deferredRunner struct {
	tasks []func(ctx context.Context)
}

func (r *deferredRunner) Submit(task func(ctx context.Context)) error {
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *deferredRunner) Flush() {
	for _, task := range r.tasks {
		task(context.Background())
	}
	r.tasks = nil
}

type fixture struct {
	store    *recordingStore
	tracker  *status.Tracker
	registry *index.Registry
}

func newOrchestrator(t *testing.T, fetcher transcript.Fetcher, embedder index.Embedder, runner Runner, sess *session.Session) (*Orchestrator, *fixture) {
	t.Helper()

	store := newRecordingStore(sess)
	tracker := status.NewTracker(status.WithPersister(store))
	registry := index.NewRegistry()

	chunker, err := chunk.NewChunker(1000, 100)
	require.NoError(t, err)

	o := NewOrchestrator(fetcher, chunker, embedder, store, tracker, registry, runner)
	return o, &fixture{store: store, tracker: tracker, registry: registry}
}

func TestOrchestrator_SubmitRunsFullPipeline(t *testing.T) {
	// 3,000ルーンのトランスクリプト: 2セグメント（1500 + 区切り空白 + 1499）
	segments := []transcript.Segment{
		{Text: strings.Repeat("a", 1500), Start: 0, Duration: 60},
		{Text: strings.Repeat("b", 1499), Start: 60, Duration: 60},
	}
	sess := &session.Session{ID: "s1", VideoID: "vid123"}

	o, fx := newOrchestrator(t, &stubFetcher{segments: segments}, &stubEmbedder{}, inlineRunner{}, sess)

	require.NoError(t, o.Submit(context.Background(), sess))

	// サイズ1000・オーバーラップ100で3,000ルーンはちょうど3チャンク
	snap, ok := fx.tracker.Get("s1")
	require.True(t, ok)
	assert.Equal(t, status.StateReady, snap.State)

	idx, ok := fx.registry.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 3, idx.Size())

	// 連続するチャンクは100ルーン重複する
	entries := idx.Entries()
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1].Chunk, entries[i].Chunk
		assert.Equal(t, 100, prev.EndOffset-cur.StartOffset)
		assert.Equal(t, string([]rune(prev.Text)[len([]rune(prev.Text))-100:]), string([]rune(cur.Text)[:100]))
	}

	// チャンクの開始時刻は対応するセグメントに由来する
	assert.Equal(t, 0.0, entries[0].Chunk.StartTime)
	assert.Equal(t, 60.0, entries[2].Chunk.StartTime)

	// 成果物が永続化され、状態遷移が順に記録される
	assert.Contains(t, fx.store.transcripts, "s1")
	assert.Contains(t, fx.store.indexData, "s1")
	assert.Equal(t, []string{"pending", "fetching", "chunking", "embedding", "ready"}, fx.store.states)
}

func TestOrchestrator_NoCaptionsFailsWithoutArtifacts(t *testing.T) {
	sess := &session.Session{ID: "s1", VideoID: "vid123"}
	fetcher := &stubFetcher{err: transcript.ErrNoCaptions}

	o, fx := newOrchestrator(t, fetcher, &stubEmbedder{}, inlineRunner{}, sess)

	err := o.RunSync(context.Background(), sess)
	assert.ErrorIs(t, err, transcript.ErrNoCaptions)

	snap, ok := fx.tracker.Get("s1")
	require.True(t, ok)
	assert.Equal(t, status.StateFailed, snap.State)
	assert.Contains(t, snap.Message, "captions")

	// 成果物は一切残らない
	assert.Empty(t, fx.store.transcripts)
	assert.Empty(t, fx.store.indexData)
	_, ok = fx.registry.Get("s1")
	assert.False(t, ok)

	assert.Equal(t, []string{"pending", "fetching", "failed"}, fx.store.states)
}

func TestOrchestrator_EmbeddingFailurePublishesNothing(t *testing.T) {
	segments := []transcript.Segment{{Text: strings.Repeat("a", 3000), Start: 0, Duration: 120}}
	sess := &session.Session{ID: "s1", VideoID: "vid123"}

	embedder := &stubEmbedder{err: errors.New("quota exceeded")}
	o, fx := newOrchestrator(t, &stubFetcher{segments: segments}, embedder, inlineRunner{}, sess)

	err := o.RunSync(context.Background(), sess)
	assert.ErrorIs(t, err, index.ErrEmbeddingProvider)

	snap, ok := fx.tracker.Get("s1")
	require.True(t, ok)
	assert.Equal(t, status.StateFailed, snap.State)

	// インデックスは公開されない
	_, ok = fx.registry.Get("s1")
	assert.False(t, ok)
	assert.Empty(t, fx.store.indexData)
}

func TestOrchestrator_DuplicateSubmitIsRejectedWhileRunning(t *testing.T) {
	segments := []transcript.Segment{{Text: "short transcript", Start: 0, Duration: 5}}
	sess := &session.Session{ID: "s1", VideoID: "vid123"}

	runner := &deferredRunner{}
	o, fx := newOrchestrator(t, &stubFetcher{segments: segments}, &stubEmbedder{}, runner, sess)

	ctx := context.Background()
	require.NoError(t, o.Submit(ctx, sess))

	// ランが終わるまで再投入はガードされる
	err := o.Submit(ctx, sess)
	assert.ErrorIs(t, err, ErrRunInProgress)

	runner.Flush()

	snap, _ := fx.tracker.Get("s1")
	assert.Equal(t, status.StateReady, snap.State)

	// 終端状態に達したら再投入できる
	require.NoError(t, o.Submit(ctx, sess))
	runner.Flush()
	assert.Equal(t, 2, fx.store.deleteCalls)
}

func TestOrchestrator_ResubmitAfterFailureRebuilds(t *testing.T) {
	sess := &session.Session{ID: "s1", VideoID: "vid123"}
	fetcher := &stubFetcher{err: transcript.ErrTransientFetch}

	o, fx := newOrchestrator(t, fetcher, &stubEmbedder{}, inlineRunner{}, sess)

	ctx := context.Background()
	require.Error(t, o.RunSync(ctx, sess))

	// 原因が解消した後の再投入で完走する
	fetcher.err = nil
	fetcher.segments = []transcript.Segment{{Text: "now it works", Start: 0, Duration: 3}}
	require.NoError(t, o.RunSync(ctx, sess))

	snap, _ := fx.tracker.Get("s1")
	assert.Equal(t, status.StateReady, snap.State)
	_, ok := fx.registry.Get("s1")
	assert.True(t, ok)
}

func TestOrchestrator_RestoreRepublishesPersistedIndexes(t *testing.T) {
	sess := &session.Session{ID: "s1", VideoID: "vid123"}
	segments := []transcript.Segment{{Text: strings.Repeat("a", 2000), Start: 0, Duration: 60}}

	o, fx := newOrchestrator(t, &stubFetcher{segments: segments}, &stubEmbedder{}, inlineRunner{}, sess)

	ctx := context.Background()
	require.NoError(t, o.Submit(ctx, sess))

	// プロセス再起動を模す: レジストリとトラッカーを作り直して復元する
	restoredTracker := status.NewTracker()
	restoredRegistry := index.NewRegistry()
	restored := NewOrchestrator(&stubFetcher{}, o.chunker, &stubEmbedder{}, fx.store, restoredTracker, restoredRegistry, inlineRunner{})

	require.NoError(t, restored.Restore(ctx, 100))

	snap, ok := restoredTracker.Get("s1")
	require.True(t, ok)
	assert.Equal(t, status.StateReady, snap.State)

	idx, ok := restoredRegistry.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 2, idx.Size())
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{transcript.ErrVideoNotFound, "not found"},
		{transcript.ErrNoCaptions, "captions"},
		{transcript.ErrTransientFetch, "retry"},
		{index.ErrEmbeddingProvider, "embedding"},
		{errors.New("anything else"), "unexpectedly"},
	}

	for _, tt := range tests {
		assert.Contains(t, classifyFailure(tt.err), tt.want, "err=%v", tt.err)
	}
}
