// サンドボックスのエントリポイント。
// アイデンティティサービスのリモートAPIをSQLite上で再現し、
// ゲートウェイをローカルで動かすための接続先になる。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nao1215/credgw/internal/config"
	"github.com/nao1215/credgw/internal/sandbox"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "設定ファイルのパス")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())
	gin.SetMode(cfg.Log.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.With().Str("service", "sandbox").Logger()
	server, err := sandbox.NewServer(ctx, cfg.Sandbox, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("サンドボックスの初期化に失敗")
	}
	defer func() { _ = server.Close() }()

	logger.Info().Str("port", cfg.Sandbox.Port).Msg("サンドボックスを起動します")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("サンドボックスの起動に失敗")
		return
	}
	logger.Info().Msg("サンドボックスを停止しました")
}
