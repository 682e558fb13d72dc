// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string `validate:"required,numeric"`                // APIサーバーのポート番号
	GinMode string `validate:"required,oneof=debug release test"` // Ginの実行モード

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、* で全許可）

	// 作業ディレクトリ
	WorkDir string `validate:"required"` // ジョブごとの in/out を作成するルート

	// ファイル制限
	MaxFileSize      int64 `validate:"gt=0"` // 単一ファイルの最大サイズ（バイト）
	MaxPages         int   `validate:"gt=0"` // 単一ファイルの最大ページ数
	MaxFiles         int   `validate:"gt=0"` // 1リクエストの最大ファイル数
	JobExpireMinutes int   `validate:"gt=0"` // ジョブの有効期限（分）

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq用Redis接続URL（空なら常に同期処理）
	AsyncThresholdBytes int64  `validate:"gte=0"` // 同期処理から非同期へ切り替えるサイズ閾値
	AsyncThresholdPages int    `validate:"gte=0"` // 同期処理から非同期へ切り替えるページ閾値
	JobResultBaseURL    string `validate:"omitempty,url"` // 結果ファイル取得用のベースURL

	// 変換設定
	GhostscriptPath    string // Ghostscript実行ファイルのパス（空ならページ画像化と高圧縮は無効）
	DefaultDPI         int    `validate:"gt=0,ltefield=MaxDPI"`
	MaxDPI             int    `validate:"gt=0,lte=1200"`
	ConvertConcurrency int    `validate:"gte=1,lte=32"` // PDF→画像変換で並行処理するファイル数
}

var validate = validator.New()

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		WorkDir: getEnv("WORK_DIR", filepath.Join(os.TempDir(), "image-converter")),

		// ファイル制限
		MaxFileSize:      getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB
		MaxPages:         getEnvAsInt("MAX_PAGES", 500),
		MaxFiles:         getEnvAsInt("MAX_FILES", 20),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 10),

		// ジョブ/キュー設定
		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", ""),
		AsyncThresholdBytes: getEnvAsInt64("ASYNC_THRESHOLD_BYTES", 50*1024*1024), // 50MB
		AsyncThresholdPages: getEnvAsInt("ASYNC_THRESHOLD_PAGES", 120),
		JobResultBaseURL:    getEnv("JOB_RESULT_BASE_URL", ""),

		// 変換設定
		GhostscriptPath:    getEnv("GHOSTSCRIPT_PATH", "gs"),
		DefaultDPI:         getEnvAsInt("DEFAULT_DPI", 72),
		MaxDPI:             getEnvAsInt("MAX_DPI", 600),
		ConvertConcurrency: getEnvAsInt("CONVERT_CONCURRENCY", 2),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 本番環境では非同期キューと Ghostscript を必須とする
	if c.GinMode == "release" {
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.GhostscriptPath == "" {
			return fmt.Errorf("GHOSTSCRIPT_PATH is required in release mode")
		}
	}

	return nil
}

// AllowedOrigins は CORS_ALLOWED_ORIGINS を配列に変換します。空要素は除きます。
func (c *Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
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

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
