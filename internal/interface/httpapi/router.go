package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupRouter はHTTP APIのルーターを構築する
func SetupRouter(handler *Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	handler.RegisterRoutes(api)

	return r
}

// requestLogger はリクエスト単位の構造化ログを出力するミドルウェア
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
