package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"signsmith/internal/device"
	"signsmith/internal/http/handlers"
	httpapi "signsmith/internal/http/httpapi"
	"signsmith/internal/imagegen"
	"signsmith/internal/infra"
	"signsmith/internal/lora"
	"signsmith/internal/service"
	"signsmith/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.App.Env, cfg.Logging.Level)

	store, err := storage.NewFileStore(cfg.Outputs.RunsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init runs store")
	}

	adapters := lora.NewRegistry(cfg.LoRA.BaseDir, cfg.LoRA.CacheDir, cfg.LoRA.DefaultWeights, cfg.LoRA.NormalizeWeights, logger)
	if n, err := adapters.Scan(); err != nil {
		logger.Warn().Err(err).Msg("adapter scan failed")
	} else {
		logger.Info().Int("adapters", n).Msg("adapter registry ready")
	}

	pipeline, err := imagegen.NewPipeline(&imagegen.Synthetic{}, cfg.LoRA.MaxCached, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init pipeline")
	}

	svc, err := service.New(cfg, logger, pipeline, adapters, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init service")
	}
	svc.Start(cfg.Model.LoadOnStart)

	dev := device.NewManager()

	app := handlers.NewApp(svc, adapters, dev, cfg, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.IdleTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	svc.Stop()
	logger.Info().Msg("server stopped")
}
