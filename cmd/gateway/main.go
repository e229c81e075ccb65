// ゲートウェイのエントリポイント。
// クエリ/ボディのパラメータを受け取り、アイデンティティサービスの操作を
// 呼び出し元のトークンで1回ずつ実行して結果を返す。
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
	"github.com/nao1215/credgw/internal/gateway"
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

	logger := log.With().Str("service", "gateway").Logger()
	server := gateway.NewServer(cfg.Gateway, logger)

	logger.Info().
		Str("port", cfg.Gateway.Port).
		Str("idservice_url", cfg.Gateway.IDServiceURL).
		Msg("ゲートウェイを起動します")
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ゲートウェイの起動に失敗")
	}
	logger.Info().Msg("ゲートウェイを停止しました")
}
