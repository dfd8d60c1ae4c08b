package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrUnknownSession は未登録のセッションIDに対する操作のエラー
	ErrUnknownSession = errors.New("unknown session")

	// ErrInvalidTransition は遷移表に無い状態遷移のエラー
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Snapshot はある時点の状態と進捗メッセージを表す
type Snapshot struct {
	State     State
	Message   string
	UpdatedAt time.Time
}

// Persister は状態変化を永続化するフック
// session.Store が構造的にこのインターフェースを満たす
type Persister interface {
	SaveProcessingState(ctx context.Context, sessionID string, state string, message string) error
}

// Tracker はセッションごとの状態機械を保持する
// 読み取りはマップ参照のみで O(1)、パイプラインの進行をブロックしない
type Tracker struct {
	mu        sync.RWMutex
	sessions  map[string]Snapshot
	persister Persister
	logger    *slog.Logger
}

// TrackerOption は Tracker のオプション設定
type TrackerOption func(*Tracker)

// WithPersister は状態変化の書き込み先を設定する
func WithPersister(p Persister) TrackerOption {
	return func(t *Tracker) {
		t.persister = p
	}
}

// WithTrackerLogger は Tracker にロガーを設定する
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker は新しい Tracker を作成する
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sessions: make(map[string]Snapshot),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Get は現在のスナップショットを返す
func (t *Tracker) Get(sessionID string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.sessions[sessionID]
	return snap, ok
}

// Begin は新しい取り込みランの開始を試みる
//
// 未登録または終端状態（READY / FAILED）のセッションは PENDING に
// 初期化して true を返す。非終端状態のランが進行中の場合は何もせず
// false を返す（重複投入に対する冪等ガード）。
func (t *Tracker) Begin(ctx context.Context, sessionID string) bool {
	t.mu.Lock()
	snap, ok := t.sessions[sessionID]
	if ok && !snap.State.Terminal() {
		t.mu.Unlock()
		return false
	}
	next := Snapshot{State: StatePending, Message: "queued for processing", UpdatedAt: time.Now()}
	t.sessions[sessionID] = next
	t.mu.Unlock()

	t.persist(ctx, sessionID, next)
	return true
}

// Transition は状態を遷移させる
// 遷移表に無い遷移は ErrInvalidTransition で拒否される
func (t *Tracker) Transition(ctx context.Context, sessionID string, to State, message string) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, to)
	}

	t.mu.Lock()
	snap, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if !canTransition(snap.State, to) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, snap.State, to)
	}
	next := Snapshot{State: to, Message: message, UpdatedAt: time.Now()}
	t.sessions[sessionID] = next
	t.mu.Unlock()

	t.persist(ctx, sessionID, next)
	return nil
}

// Fail は任意の非終端状態から FAILED へ遷移させる
// すでに終端状態の場合は何もしない
func (t *Tracker) Fail(ctx context.Context, sessionID string, message string) {
	t.mu.Lock()
	snap, ok := t.sessions[sessionID]
	if !ok || snap.State.Terminal() {
		t.mu.Unlock()
		return
	}
	next := Snapshot{State: StateFailed, Message: message, UpdatedAt: time.Now()}
	t.sessions[sessionID] = next
	t.mu.Unlock()

	t.persist(ctx, sessionID, next)
}

// RestoreReady は永続化済みインデックスを持つセッションを起動時に
// READY として登録する。稼働中のランに対しては使用しない。
func (t *Tracker) RestoreReady(sessionID string, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if snap, ok := t.sessions[sessionID]; ok && !snap.State.Terminal() {
		return
	}
	t.sessions[sessionID] = Snapshot{State: StateReady, Message: message, UpdatedAt: time.Now()}
}

// persist は状態変化を書き込みフックへ伝える（失敗はログのみ）
func (t *Tracker) persist(ctx context.Context, sessionID string, snap Snapshot) {
	if t.persister == nil {
		return
	}
	if err := t.persister.SaveProcessingState(ctx, sessionID, string(snap.State), snap.Message); err != nil {
		t.logger.Warn("failed to persist processing state",
			"sessionID", sessionID,
			"state", snap.State,
			"error", err,
		)
	}
}
