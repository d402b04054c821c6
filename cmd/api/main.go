// Command api runs the eventops authentication gateway.
//
//	@title						eventops auth gateway
//	@version					1.0
//	@description				Authentication, session and authorization service for the eventops platform.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	_ "github.com/eventops/auth-gateway/docs"
	"github.com/eventops/auth-gateway/internal/app"
	apphttp "github.com/eventops/auth-gateway/internal/infrastructure/http"
	"github.com/eventops/auth-gateway/internal/pkg/config"
	"github.com/eventops/auth-gateway/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "auth-gateway",
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway")
	}
	defer gw.Close()

	gw.Start(ctx)

	srv := apphttp.NewServer(":"+cfg.Port, gw.Echo, logger.Component("http"))
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("http server stopped with error")
		gw.Close()
		os.Exit(1)
	}
	log.Info().Msg("stopped")
}
