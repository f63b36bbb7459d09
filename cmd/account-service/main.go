package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/account-directory/internal/config"
	"github.com/vasiliy-maslov/account-directory/internal/db"
	userHttp "github.com/vasiliy-maslov/account-directory/internal/handler/http"
	"github.com/vasiliy-maslov/account-directory/internal/storage"
	"github.com/vasiliy-maslov/account-directory/internal/user"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogger(cfg.App)
	log.Info().Msg("Account service starting...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, closeRepo, err := newRepository(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to set up user storage")
	}
	defer closeRepo()

	images, routerOpts, err := newImageStore(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up image storage")
	}

	userSvc := user.NewService(repo, images)
	userHandler := userHttp.NewUserHandler(userSvc, cfg.Images.MaxUploadBytes())
	router := userHttp.NewRouter(userHandler, routerOpts)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Account service stopped gracefully")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "account-service").Logger()
}

func newRepository(ctx context.Context, cfg *config.Config) (user.Repository, func(), error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn().Msg("Using in-memory user storage, data is lost on restart")
		return user.NewMemoryRepository(), func() {}, nil
	}

	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, nil, err
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}

	return user.NewRepository(pg.Pool), pg.Close, nil
}

func newImageStore(ctx context.Context, cfg *config.Config) (user.ImageStore, userHttp.RouterOptions, error) {
	switch cfg.Images.Backend {
	case config.ImageBackendS3:
		store, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, userHttp.RouterOptions{}, err
		}
		return store, userHttp.RouterOptions{}, nil
	case config.ImageBackendLocal:
		store, err := storage.NewLocalStore(cfg.Images.Dir, cfg.Images.URLPrefix)
		if err != nil {
			return nil, userHttp.RouterOptions{}, err
		}
		return store, userHttp.RouterOptions{ImagesDir: store.Dir(), ImagesPrefix: cfg.Images.URLPrefix}, nil
	default:
		return nil, userHttp.RouterOptions{}, fmt.Errorf("unknown images backend %q", cfg.Images.Backend)
	}
}
