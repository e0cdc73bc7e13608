// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config はAPIサーバーとワーカーの設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Auth（トークンの発行は外部の認証プロバイダーが行う）
	AuthJWTSecret string        `env:"AUTH_JWT_SECRET,required,notEmpty"`
	AuthIssuer    string        `env:"AUTH_ISSUER"`
	AuthAudience  string        `env:"AUTH_AUDIENCE"`
	AdminCacheTTL time.Duration `env:"ADMIN_CACHE_TTL" envDefault:"1m"`

	// Rate Limit（req/min）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitRating  int `env:"RATE_LIMIT_RATING" envDefault:"10"`

	// Wikipedia
	WikiTTL              time.Duration `env:"WIKI_TTL" envDefault:"168h"`
	WikiBatchInterval    time.Duration `env:"WIKI_BATCH_INTERVAL" envDefault:"30m"`
	WikiAPIInterval      time.Duration `env:"WIKI_API_INTERVAL" envDefault:"2s"`
	WikiMaxCallsPerCycle int           `env:"WIKI_MAX_CALLS_PER_CYCLE" envDefault:"50"`
	WikiFetchTimeout     time.Duration `env:"WIKI_FETCH_TIMEOUT" envDefault:"10s"`
	WikiFetchMaxSize     int64         `env:"WIKI_FETCH_MAX_SIZE" envDefault:"2097152"`
	WikiRetentionDays    int           `env:"WIKI_RETENTION_DAYS" envDefault:"30"`

	// Server
	ServerPort        string `env:"SERVER_PORT" envDefault:"8080"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:5173"`
}

// ClientConfig はbrowseコマンド（クライアント）の設定を保持する。
type ClientConfig struct {
	APIBaseURL     string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	AccessToken    string        `env:"ACCESS_TOKEN"`
	StatePath      string        `env:"STATE_PATH" envDefault:"ministers-state.db"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む。既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient は環境変数からClientConfigを読み込む。
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("クライアント設定の読み込みに失敗しました: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimitGeneral <= 0 || c.RateLimitRating <= 0 {
		return fmt.Errorf("レート制限は正の値で指定してください: general=%d rating=%d", c.RateLimitGeneral, c.RateLimitRating)
	}
	if c.WikiRetentionDays <= 0 {
		return fmt.Errorf("WIKI_RETENTION_DAYSは正の値で指定してください: %d", c.WikiRetentionDays)
	}
	return nil
}
