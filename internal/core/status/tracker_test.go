package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ForwardTransitions(t *testing.T) {
	tracker := NewTracker()
	ctx := context.Background()

	require.True(t, tracker.Begin(ctx, "s1"))

	sequence := []State{StateFetching, StateChunking, StateEmbedding, StateReady}
	for _, next := range sequence {
		require.NoError(t, tracker.Transition(ctx, "s1", next, ""))
		snap, ok := tracker.Get("s1")
		require.True(t, ok)
		assert.Equal(t, next, snap.State)
	}
}

func TestTracker_RejectsTransitionsOutsideTable(t *testing.T) {
	tests := []struct {
		name string
		walk []State // Begin 後に適用する遷移列（最後の遷移が失敗するべき）
	}{
		{name: "skip a stage", walk: []State{StateChunking}},
		{name: "backwards", walk: []State{StateFetching, StateChunking, StateFetching}},
		{name: "ready from pending", walk: []State{StateReady}},
		{name: "leave ready", walk: []State{StateFetching, StateChunking, StateEmbedding, StateReady, StateFetching}},
		{name: "leave failed", walk: []State{StateFailed, StateFetching}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker()
			ctx := context.Background()
			require.True(t, tracker.Begin(ctx, "s1"))

			for i, next := range tt.walk {
				err := tracker.Transition(ctx, "s1", next, "")
				if i == len(tt.walk)-1 {
					assert.ErrorIs(t, err, ErrInvalidTransition)
				} else {
					require.NoError(t, err)
				}
			}
		})
	}
}

func TestTracker_TransitionUnknownSession(t *testing.T) {
	tracker := NewTracker()
	err := tracker.Transition(context.Background(), "missing", StateFetching, "")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestTracker_BeginGuardsActiveRun(t *testing.T) {
	tracker := NewTracker()
	ctx := context.Background()

	require.True(t, tracker.Begin(ctx, "s1"))
	require.NoError(t, tracker.Transition(ctx, "s1", StateFetching, ""))

	// 非終端状態の間は再投入できない
	assert.False(t, tracker.Begin(ctx, "s1"))

	// 終端状態になれば新しいランを開始できる
	tracker.Fail(ctx, "s1", "boom")
	assert.True(t, tracker.Begin(ctx, "s1"))

	snap, ok := tracker.Get("s1")
	require.True(t, ok)
	assert.Equal(t, StatePending, snap.State)
}

func TestTracker_FailFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()

	walks := map[string][]State{
		"pending":   {},
		"fetching":  {StateFetching},
		"chunking":  {StateFetching, StateChunking},
		"embedding": {StateFetching, StateChunking, StateEmbedding},
	}

	for name, walk := range walks {
		t.Run(name, func(t *testing.T) {
			tracker := NewTracker()
			require.True(t, tracker.Begin(ctx, "s1"))
			for _, next := range walk {
				require.NoError(t, tracker.Transition(ctx, "s1", next, ""))
			}

			tracker.Fail(ctx, "s1", "provider unavailable")

			snap, _ := tracker.Get("s1")
			assert.Equal(t, StateFailed, snap.State)
			assert.Equal(t, "provider unavailable", snap.Message)
		})
	}
}

func TestTracker_FailDoesNotOverwriteReady(t *testing.T) {
	tracker := NewTracker()
	ctx := context.Background()

	require.True(t, tracker.Begin(ctx, "s1"))
	for _, next := range []State{StateFetching, StateChunking, StateEmbedding, StateReady} {
		require.NoError(t, tracker.Transition(ctx, "s1", next, ""))
	}

	tracker.Fail(ctx, "s1", "late failure")

	snap, _ := tracker.Get("s1")
	assert.Equal(t, StateReady, snap.State)
}

type recordingPersister struct {
	states []string
}

func (p *recordingPersister) SaveProcessingState(ctx context.Context, sessionID, state, message string) error {
	p.states = append(p.states, state)
	return nil
}

func TestTracker_PersistsEveryTransition(t *testing.T) {
	persister := &recordingPersister{}
	tracker := NewTracker(WithPersister(persister))
	ctx := context.Background()

	require.True(t, tracker.Begin(ctx, "s1"))
	require.NoError(t, tracker.Transition(ctx, "s1", StateFetching, ""))
	tracker.Fail(ctx, "s1", "no captions")

	assert.Equal(t, []string{"pending", "fetching", "failed"}, persister.states)
}
