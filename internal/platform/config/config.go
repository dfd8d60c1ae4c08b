package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// StoreKind は永続化バックエンドの種別
type StoreKind string

const (
	// StoreKindMemory はプロセス内メモリストア
	StoreKindMemory StoreKind = "memory"
	// StoreKindPostgres はPostgreSQL(pgvector)ストア
	StoreKindPostgres StoreKind = "postgres"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// HTTPサーバ設定
	HTTP HTTPConfig

	// 永続化バックエンドの選択
	Store StoreKind

	// Database設定（Store=postgres のとき使用）
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// 取り込みパイプライン設定
	Ingest IngestConfig
}

// HTTPConfig はHTTPサーバ設定
type HTTPConfig struct {
	Port int
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string
}

// IngestConfig は取り込みパイプラインの設定
type IngestConfig struct {
	ChunkSize       int // チャンクサイズ（ルーン数）
	ChunkOverlap    int // チャンク間のオーバーラップ（ルーン数）
	TopK            int // 検索で取得するチャンク数
	MaxWorkers      int // 同時に実行する取り込みジョブ数
	ContextMaxToken int // 回答生成プロンプトに含めるコンテキストのトークン上限
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
		Store: StoreKind(getEnv("STORE", string(StoreKindMemory))),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "tuberag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tuberag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		},
		Ingest: IngestConfig{
			ChunkSize:       getEnvAsInt("INGEST_CHUNK_SIZE", 1000),
			ChunkOverlap:    getEnvAsInt("INGEST_CHUNK_OVERLAP", 200),
			TopK:            getEnvAsInt("INGEST_TOP_K", 4),
			MaxWorkers:      getEnvAsInt("INGEST_MAX_WORKERS", 4),
			ContextMaxToken: getEnvAsInt("INGEST_CONTEXT_MAX_TOKENS", 3000),
		},
	}

	if cfg.Store != StoreKindMemory && cfg.Store != StoreKindPostgres {
		return nil, fmt.Errorf("unknown STORE kind: %q", cfg.Store)
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
