package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mastobridge/mastobridge/internal/biz/usecase"
	"github.com/mastobridge/mastobridge/internal/conf"
	"github.com/mastobridge/mastobridge/internal/data"
	"github.com/mastobridge/mastobridge/internal/infra/chatgw"
	"github.com/mastobridge/mastobridge/internal/infra/masto"
	"github.com/mastobridge/mastobridge/internal/service"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	// Initialize repository layer
	repos, err := data.NewRepositories(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer repos.Close()
	logger.Info().Str("db", cfg.Storage.DBPath).Msg("database ready")

	// Initialize clients
	mastoClient := masto.NewClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chatClient, err := chatgw.Dial(ctx, cfg.Gateway.URL, cfg.Gateway.Token, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to chat gateway")
	}
	defer chatClient.Close()
	logger.Info().Str("gateway", cfg.Gateway.URL).Msg("chat gateway connected")

	// Initialize usecase layer
	mapperUC := usecase.NewMapperUsecase(repos.Mappings, repos.Sessions, chatClient, cfg.AvatarPath, logger)
	inboundUC := usecase.NewInboundUsecase(repos.Sessions, repos.Cursors, mastoClient, chatClient, mapperUC, cfg.Poll.Interval, logger)
	sessionUC := usecase.NewSessionUsecase(repos.Sessions, repos.Pending, repos.Apps, repos.Cursors, mastoClient, chatClient, mapperUC, inboundUC.RunOwner, logger)
	inboundUC.SetAuthFailureHandler(sessionUC.Reauthenticate)
	outboundUC := usecase.NewOutboundUsecase(sessionUC, mapperUC, mastoClient, chatClient, logger)
	commandUC := usecase.NewCommandUsecase(sessionUC, mapperUC, mastoClient, chatClient, logger)

	// Run the bridge until interrupted
	bridge := service.NewBridge(sessionUC, mapperUC, outboundUC, commandUC, chatClient, logger)
	if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("bridge stopped")
	}
	logger.Info().Msg("shutting down")
}
