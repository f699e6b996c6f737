// Command dragserver serves the race and sweep HTTP API without the desktop
// shell.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/MJE43/dragstrip/internal/api"
	"github.com/MJE43/dragstrip/internal/apitoken"
	"github.com/MJE43/dragstrip/internal/config"
	"github.com/MJE43/dragstrip/internal/store"
	"github.com/MJE43/dragstrip/internal/sweep"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to the JSON settings file")
	addr := flag.String("addr", "", "Listen address (overrides http_addr)")
	timeout := flag.Duration("timeout", 60*time.Second, "Per-request timeout")
	flag.Parse()

	logger := log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config_load_failed path=%s err=%v", *configPath, err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if cfg.HTTPAddr == "" {
		logger.Fatalf("no listen address configured")
	}

	if err := run(cfg, *timeout, logger); err != nil {
		logger.Fatalf("server_failed err=%v", err)
	}
}

func run(cfg config.Config, timeout time.Duration, logger *log.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DBPath() != ":memory:" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return err
		}
	}
	db, err := store.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithTimeout(timeout),
		api.WithSweeper(sweep.NewSweeper(
			sweep.WithWorkers(cfg.Workers),
			sweep.WithLogger(log.New(os.Stdout, "[sweep] ", log.LstdFlags)),
		)),
	}
	if cfg.RequireToken {
		tokens := apitoken.NewKeyringStore(cfg.KeyringService, cfg.TokenFallbackPath())
		token, created, err := tokens.Ensure(cfg.TokenName)
		if err != nil {
			return err
		}
		if created {
			logger.Printf("api_token_created name=%s token=%s", cfg.TokenName, token)
		}
		opts = append(opts, api.WithToken(token))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(db, opts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("server_started addr=%s version=%s token_enabled=%t", cfg.HTTPAddr, api.EngineVersion(), cfg.RequireToken)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Printf("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
