// Command eurocore runs the request-queueing gateway described in
// SPEC_FULL.md: it loads configuration, opens the database (applying
// pending migrations), starts the rate-budget and credential-cache
// actors, starts the three worker actors, and serves the HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Europeia/eurocore/internal/api"
	"github.com/Europeia/eurocore/internal/auth"
	"github.com/Europeia/eurocore/internal/config"
	"github.com/Europeia/eurocore/internal/logging"
	"github.com/Europeia/eurocore/internal/nation"
	"github.com/Europeia/eurocore/internal/ratelimit"
	"github.com/Europeia/eurocore/internal/remote"
	"github.com/Europeia/eurocore/internal/store"
	"github.com/Europeia/eurocore/internal/worker"
)

func main() {
	app := &cli.App{
		Name:  "eurocore",
		Usage: "request-queueing gateway for the NationStates write API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP gateway",
				Action: runServe,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending schema migrations and exit",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := store.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	return db.Close()
}

func runServe(cliCtx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	db, err := store.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := ratelimit.Start(ctx, ratelimit.DefaultConfig())
	dispatchNations := nation.Start(ctx, cfg.DispatchNations)
	rmbpostNations := nation.Start(ctx, cfg.RmbpostNations)

	dispatchClient := remote.New(cfg.User, cfg.TelegramClientKey, limiter, dispatchNations)
	rmbpostClient := remote.New(cfg.User, cfg.TelegramClientKey, limiter, rmbpostNations)
	telegramClient := remote.New(cfg.User, cfg.TelegramClientKey, limiter, dispatchNations)

	dispatchWorker := worker.StartDispatchWorker(ctx, limiter, dispatchNations, dispatchClient, db, log)
	rmbpostWorker := worker.StartRmbPostWorker(ctx, limiter, rmbpostNations, rmbpostClient, db, log)
	telegramWorker := worker.StartTelegramWorker(ctx, limiter, telegramClient, log)

	verifier := auth.New(cfg.Secret)
	controller := api.NewController(db, dispatchNations, rmbpostNations, limiter, dispatchWorker, rmbpostWorker, telegramWorker, log)
	router := api.NewRouter(controller, verifier, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.Int("port", cfg.Port))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		log.Info("shutting down")
		cancel()
		return server.Shutdown(context.Background())
	}
	return nil
}
