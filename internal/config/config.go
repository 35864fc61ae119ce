// Package config は環境変数から設定を読み込み、エージェント全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はエージェントの設定を保持する構造体です。
type Config struct {
	// バックエンド設定
	APIBaseURL string // 処理サーバーのベースURL

	// ローカル状態
	StateDir           string        // セッションIDやチェックポイントを置くディレクトリ
	CheckpointRedisURL string        // 指定時はチェックポイントを Redis に保存する
	CheckpointTTL      time.Duration // チェックポイントの有効期限（サーバー側のジョブTTLと同じ）

	// ジョブ設定
	PollInterval  time.Duration // ステータス確認の間隔
	MaxPolls      int           // ステータス確認の上限回数
	UploadTimeout time.Duration // アップロードの上限時間
	MaxFiles      int           // 一度に選択できるファイル数

	// プロンプト正規化
	FuzzyThreshold    float64 // あいまい補正の信頼度しきい値
	AutoCompressRatio float64 // 単純な compress の目標サイズ比率
	AutoCompressMinMB int     // 単純な compress の目標サイズ下限（MB）

	// ログ/メトリクス
	LogLevel    string // trace, debug, info, warn, error
	LogFormat   string // console または json
	MetricsAddr string // 空の場合は /metrics を公開しない

	// 開発用バックエンド
	DevAPIPort    string // devapi の待ち受けポート
	DevAPIPolls   int    // devapi でジョブが完了するまでのポーリング回数
	DevAPIOrigins string // CORS許可オリジン（カンマ区切り、空なら全許可）
	GinMode       string // debug, release, test
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://127.0.0.1:8000"),

		StateDir:           getEnv("STATE_DIR", defaultStateDir()),
		CheckpointRedisURL: getEnv("CHECKPOINT_REDIS_URL", ""),
		CheckpointTTL:      getEnvAsDuration("CHECKPOINT_TTL", 30*time.Minute),

		PollInterval:  getEnvAsDuration("POLL_INTERVAL", time.Second),
		MaxPolls:      getEnvAsInt("MAX_POLLS", 600), // 1秒間隔で10分
		UploadTimeout: getEnvAsDuration("UPLOAD_TIMEOUT", 10*time.Minute),
		MaxFiles:      getEnvAsInt("MAX_FILES", 25),

		FuzzyThreshold:    getEnvAsFloat("FUZZY_THRESHOLD", 0.74),
		AutoCompressRatio: getEnvAsFloat("AUTO_COMPRESS_RATIO", 0.25),
		AutoCompressMinMB: getEnvAsInt("AUTO_COMPRESS_MIN_MB", 1),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),
		MetricsAddr: getEnv("METRICS_ADDR", ""),

		DevAPIPort:    getEnv("DEVAPI_PORT", "8000"),
		DevAPIPolls:   getEnvAsInt("DEVAPI_POLLS", 3),
		DevAPIOrigins: getEnv("DEVAPI_ALLOWED_ORIGINS", ""),
		GinMode:       getEnv("GIN_MODE", "debug"),
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

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "paper-agent")
	}
	return filepath.Join(home, ".paper-agent")
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.MaxPolls <= 0 {
		return fmt.Errorf("MAX_POLLS must be positive")
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("UPLOAD_TIMEOUT must be positive")
	}
	if c.CheckpointTTL <= 0 {
		return fmt.Errorf("CHECKPOINT_TTL must be positive")
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("FUZZY_THRESHOLD must be in (0, 1]")
	}
	if c.AutoCompressRatio <= 0 || c.AutoCompressRatio > 1 {
		return fmt.Errorf("AUTO_COMPRESS_RATIO must be in (0, 1]")
	}
	if c.AutoCompressMinMB < 1 {
		return fmt.Errorf("AUTO_COMPRESS_MIN_MB must be at least 1")
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("MAX_FILES must be positive")
	}
	return nil
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

// getEnvAsFloat は環境変数を浮動小数点数として取得します。
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 1s, 10m）。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
