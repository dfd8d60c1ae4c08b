package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/tube-rag/internal/core/chunk"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/transcript"
)

func TestStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	sess := &session.Session{ID: "s1", VideoID: "v1", VideoURL: "https://youtu.be/v1", CreatedAt: time.Now()}
	require.NoError(t, store.CreateSession(ctx, sess))

	// 重複作成は拒否される
	assert.Error(t, store.CreateSession(ctx, sess))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess, got.MustGet())

	missing, err := store.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.True(t, missing.IsAbsent())
}

func TestStore_ListRecentSessionsOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	base := time.Now()
	for i := range 5 {
		require.NoError(t, store.CreateSession(ctx, &session.Session{
			ID:        fmt.Sprintf("s%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	sessions, err := store.ListRecentSessions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "s4", sessions[0].ID)
	assert.Equal(t, "s3", sessions[1].ID)
	assert.Equal(t, "s2", sessions[2].ID)
}

func TestStore_ArtifactsLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateSession(ctx, &session.Session{ID: "s1"}))

	tr := transcript.New("v1", []transcript.Segment{{Text: "hello", Start: 0, Duration: 2}})
	require.NoError(t, store.SaveTranscript(ctx, "s1", tr))

	data := session.IndexData{
		Chunks:  []chunk.Chunk{{Ordinal: 0, Text: "hello"}},
		Vectors: [][]float32{{1, 0}},
	}
	require.NoError(t, store.SaveIndexData(ctx, "s1", data))

	gotTr, err := store.GetTranscript(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, tr, gotTr.MustGet())

	gotData, err := store.LoadIndexData(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, data, gotData.MustGet())

	// 履歴を追記してから成果物を破棄する
	require.NoError(t, store.AppendQARecord(ctx, &session.QARecord{ID: "r1", SessionID: "s1", Question: "q", Answer: "a"}))
	require.NoError(t, store.DeleteArtifacts(ctx, "s1"))

	trOpt, err := store.GetTranscript(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, trOpt.IsAbsent())

	dataOpt, err := store.LoadIndexData(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, dataOpt.IsAbsent())

	// セッションと履歴は残る
	sessOpt, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sessOpt.IsPresent())

	records, err := store.ListQARecords(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_QARecordsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateSession(ctx, &session.Session{ID: "s1"}))

	for i := range 3 {
		require.NoError(t, store.AppendQARecord(ctx, &session.QARecord{
			ID:        fmt.Sprintf("r%d", i),
			SessionID: "s1",
			Question:  fmt.Sprintf("q%d", i),
		}))
	}

	records, err := store.ListQARecords(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("q%d", i), rec.Question)
	}

	// 未知のセッションへの追記は拒否される
	err = store.AppendQARecord(ctx, &session.QARecord{ID: "rX", SessionID: "nope"})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_SaveProcessingState(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.SaveProcessingState(ctx, "s1", "fetching", "fetching transcript"))
	require.NoError(t, store.SaveProcessingState(ctx, "s1", "failed", "boom"))

	store.mu.RLock()
	defer store.mu.RUnlock()
	assert.Equal(t, processingState{State: "failed", Message: "boom"}, store.states["s1"])
}
