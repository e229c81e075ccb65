// Package config はゲートウェイとサンドボックスの設定を読み込む。
//
// YAMLファイルの値を既定値に重ね、さらに環境変数で上書きする。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config は全体の設定。
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Log     LogConfig     `yaml:"log"`
}

// GatewayConfig はゲートウェイの設定。
type GatewayConfig struct {
	// Port はリッスンポート。
	Port string `yaml:"port"`
	// IDServiceURL はアイデンティティサービスのベースURL。
	IDServiceURL string `yaml:"idservice_url"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SandboxConfig はサンドボックス（リモートサービスの代替）の設定。
type SandboxConfig struct {
	Port string `yaml:"port"`
	// DBPath はSQLiteのDSN。
	DBPath string `yaml:"db_path"`
	// TokenSecret はトークン署名用の秘密鍵。
	TokenSecret string `yaml:"token_secret"`
	// PublicURL はスキーマURIの組み立てに使う公開URL。
	PublicURL string `yaml:"public_url"`
}

// LogConfig はログとGinの動作モードの設定。
type LogConfig struct {
	// Level はzerologのログレベル（debug, info, warn, error）。
	Level string `yaml:"level"`
	// GinMode はGinの動作モード（debug, release, test）。
	GinMode string `yaml:"gin_mode"`
}

// Default は既定の設定を返す。
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:           "8080",
			IDServiceURL:   "http://localhost:8090",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Sandbox: SandboxConfig{
			Port:        "8090",
			DBPath:      "/data/sandbox.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			TokenSecret: "dev-secret-key",
			PublicURL:   "http://localhost:8090",
		},
		Log: LogConfig{
			Level:   "info",
			GinMode: "release",
		},
	}
}

// Load は設定を読み込む。pathが空またはファイルが存在しない場合は既定値を使う。
// 最後に環境変数の値で上書きする。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("設定ファイルのパースに失敗: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする。
func (c *Config) applyEnv() {
	c.Gateway.Port = getEnvOr("PORT", c.Gateway.Port)
	c.Gateway.IDServiceURL = getEnvOr("IDSERVICE_URL", c.Gateway.IDServiceURL)
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	c.Sandbox.Port = getEnvOr("SANDBOX_PORT", c.Sandbox.Port)
	c.Sandbox.DBPath = getEnvOr("SANDBOX_DB_PATH", c.Sandbox.DBPath)
	c.Sandbox.TokenSecret = getEnvOr("SANDBOX_TOKEN_SECRET", c.Sandbox.TokenSecret)
	c.Sandbox.PublicURL = getEnvOr("SANDBOX_PUBLIC_URL", c.Sandbox.PublicURL)

	c.Log.Level = getEnvOr("LOG_LEVEL", c.Log.Level)
	c.Log.GinMode = getEnvOr("GIN_MODE", c.Log.GinMode)
}

// validate は設定値を検証する。
func (c *Config) validate() error {
	if c.Gateway.IDServiceURL == "" {
		return errors.New("idservice_url が設定されていません")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("ログレベルが不正: %w", err)
	}
	switch c.Log.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("gin_mode が不正: %q", c.Log.GinMode)
	}
	return nil
}

// LogLevel はzerologのログレベルを返す。
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
