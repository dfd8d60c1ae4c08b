package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jinford/tube-rag/internal/core/ask"
	"github.com/jinford/tube-rag/internal/core/index"
	"github.com/jinford/tube-rag/internal/core/ingestion"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/core/status"
	"github.com/jinford/tube-rag/internal/infra/youtube"
)

// Handler はセッションAPIのHTTPハンドラ群
type Handler struct {
	store        session.Store
	tracker      *status.Tracker
	orchestrator *ingestion.Orchestrator
	askService   *ask.AskService
	logger       *slog.Logger
}

type HandlerOption func(*Handler)

// WithHandlerLogger は Handler にロガーを設定する
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler は新しい Handler を作成する
func NewHandler(
	store session.Store,
	tracker *status.Tracker,
	orchestrator *ingestion.Orchestrator,
	askService *ask.AskService,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		store:        store,
		tracker:      tracker,
		orchestrator: orchestrator,
		askService:   askService,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// RegisterRoutes はセッションAPIのルートを登録する
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id/status", h.GetStatus)
	r.POST("/sessions/:id/ask", h.Ask)
	r.GET("/sessions/:id/history", h.GetHistory)
	r.POST("/sessions/:id/reprocess", h.Reprocess)
}

type createSessionRequest struct {
	VideoURL string `json:"video_url" binding:"required"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	VideoID   string `json:"video_id"`
}

// CreateSession は動画URLからセッションを作成し、取り込みを開始する
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	videoID, err := youtube.ExtractVideoID(req.VideoURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := &session.Session{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		VideoURL:  req.VideoURL,
		CreatedAt: time.Now(),
	}

	ctx := c.Request.Context()
	if err := h.store.CreateSession(ctx, sess); err != nil {
		h.logger.Error("failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	if err := h.orchestrator.Submit(ctx, sess); err != nil {
		h.logger.Error("failed to submit ingestion", "sessionID", sess.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start processing"})
		return
	}

	c.JSON(http.StatusAccepted, createSessionResponse{
		SessionID: sess.ID,
		VideoID:   sess.VideoID,
	})
}

type statusResponse struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// GetStatus はセッションの処理状態を返す
func (h *Handler) GetStatus(c *gin.Context) {
	sessionID := c.Param("id")

	sessOpt, err := h.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}
	if sessOpt.IsAbsent() {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	snap, ok := h.tracker.Get(sessionID)
	if !ok {
		// 再起動などで処理状態が失われたセッション
		c.JSON(http.StatusOK, statusResponse{
			State:   string(status.StateFailed),
			Message: "processing state lost; submit reprocess to rebuild",
		})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		State:   string(snap.State),
		Message: snap.Message,
	})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

type askResponse struct {
	Answer  string       `json:"answer"`
	Sources []sourceJSON `json:"sources"`
}

type sourceJSON struct {
	Ordinal   int     `json:"ordinal"`
	StartTime float64 `json:"start_time"`
	Score     float64 `json:"score"`
}

// Ask は質問に回答する
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.askService.Ask(c.Request.Context(), ask.AskParams{
		SessionID: c.Param("id"),
		Question:  req.Question,
	})
	if err != nil {
		h.writeAskError(c, err)
		return
	}

	sources := make([]sourceJSON, 0, len(result.Sources))
	for _, src := range result.Sources {
		sources = append(sources, sourceJSON{
			Ordinal:   src.Ordinal,
			StartTime: src.StartTime,
			Score:     src.Score,
		})
	}

	c.JSON(http.StatusOK, askResponse{
		Answer:  result.Answer,
		Sources: sources,
	})
}

// writeAskError は質問応答のエラーをHTTPステータスに対応付ける
func (h *Handler) writeAskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, ask.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, index.ErrEmbeddingProvider), errors.Is(err, ask.ErrGenerationProvider):
		h.logger.Error("provider failure during ask", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream provider failed"})
	default:
		h.logger.Error("ask failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetHistory はセッションのチャット履歴を返す
func (h *Handler) GetHistory(c *gin.Context) {
	records, err := h.askService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	if records == nil {
		records = []*session.QARecord{}
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// ListSessions は新しい順にセッションを返す
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.store.ListRecentSessions(c.Request.Context(), 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	if sessions == nil {
		sessions = []*session.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// Reprocess は既存セッションの取り込みをやり直す
func (h *Handler) Reprocess(c *gin.Context) {
	sessionID := c.Param("id")

	ctx := c.Request.Context()
	sessOpt, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}
	sess, ok := sessOpt.Get()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if err := h.orchestrator.Submit(ctx, sess); err != nil {
		if errors.Is(err, ingestion.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "processing is already in progress"})
			return
		}
		h.logger.Error("failed to submit reprocess", "sessionID", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start processing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"session_id": sessionID})
}
