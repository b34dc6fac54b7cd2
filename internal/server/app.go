// Package server runs the message store daemon. It applies schema
// migrations on start and then periodically purges expired and viewed
// view-once messages until it receives a termination signal.
package server

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/logging"
	"github.com/dmitrijs2005/cryptchat/internal/repositories/repomanager"
	"github.com/dmitrijs2005/cryptchat/internal/server/config"
)

// Purger deletes messages that should no longer be served.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// openStore is a seam for repomanager.Open.
var openStore = func(ctx context.Context, dsn string) (io.Closer, Purger, error) {
	db, repo, err := repomanager.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return db, repo, nil
}

type App struct {
	config *config.Config
	logger logging.Logger
	db     io.Closer
	store  Purger
	now    func() time.Time
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	db, store, err := openStore(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	return &App{config: c, logger: logger, db: db, store: store, now: time.Now}, nil
}

func (app *App) purgeOnce(ctx context.Context) {
	n, err := app.store.PurgeExpired(ctx, app.now().UTC())
	if err != nil {
		app.logger.Error(ctx, "purge failed", "error", err)
		return
	}
	if n > 0 {
		app.logger.Info(ctx, "purged messages", "count", n)
	}
}

func (app *App) purgeLoop(ctx context.Context) {
	app.purgeOnce(ctx)

	ticker := time.NewTicker(app.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.purgeOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Run blocks until ctx is done or SIGINT/SIGTERM/SIGQUIT arrives, then
// closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting message store daemon...", "purge_interval", app.config.PurgeInterval.String())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.purgeLoop(ctx)
	}()
	wg.Wait()

	app.logger.Info(context.Background(), "Stopping message store daemon")
	return app.db.Close()
}
