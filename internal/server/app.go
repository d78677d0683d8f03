// Package server initializes and runs the authority: it wires the postgres
// repositories, the redis-backed relay hub and the HTTP API, and handles
// graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/attachments"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/config"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/httpapi"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/locks"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/relay"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/shared/db"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/users"
)

type App struct {
	config *config.Config
	logger logging.Logger
	rm     db.RepositoryManager
	hub    *relay.Hub
	api    *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	rm, err := db.NewPostgresRepositoryManager(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	hub := relay.NewHub(redis.NewClient(&redis.Options{Addr: c.RedisAddr}), logger)

	lockSvc := locks.NewService(rm.Locks(), c)
	userSvc := users.NewService(rm.Users(), rm.RefreshTokens(), c)
	entitySvc := entities.NewService(rm.Entities(), lockSvc, hub, c, logger)
	attachmentSvc := attachments.NewService(c)

	api := httpapi.NewServer(c, userSvc, entitySvc, lockSvc, attachmentSvc, hub, logger)

	return &App{config: c, logger: logger, rm: rm, hub: hub, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	if err := app.rm.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.hub.Run(ctx); err != nil && ctx.Err() == nil {
			app.logger.Error(ctx, "relay hub stopped", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.api.Run(); err != nil {
			app.logger.Error(ctx, "http server stopped", "error", err)
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.api.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "http server shutdown error", "error", err)
	}

	wg.Wait()
	app.logger.Info(context.Background(), "app stopped")
	return nil
}
