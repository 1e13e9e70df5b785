// Package main runs the creative gas fee engine REST service.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/dujyo/gasengine/internal/api/httpserver"
	app "github.com/dujyo/gasengine/internal/app"
	"github.com/dujyo/gasengine/internal/app/httpapi"
	"github.com/dujyo/gasengine/internal/app/metrics"
	"github.com/dujyo/gasengine/internal/app/storage/postgres"
	"github.com/dujyo/gasengine/internal/config"
	"github.com/dujyo/gasengine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("main").WithError(err).Fatal("load configuration")
	}

	log, err := logger.New(cfg.Logging, "gasengine")
	if err != nil {
		logger.NewDefault("main").WithError(err).Fatal("configure logging")
	}

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		defer db.Close()
		store := postgres.New(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.WithError(err).Fatal("ensure database schema")
		}
		stores = app.Stores{Ledger: store, Sponsorship: store, Receipts: store}
		log.Info("using postgres ledger")
	} else {
		log.Info("no database configured; using in-memory ledger")
	}

	application, err := app.New(cfg.Engine, stores, log)
	if err != nil {
		log.WithError(err).Fatal("initialize application")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(application))

	server := httpserver.New(cfg.Server.Addr(), metrics.InstrumentHandler(mux), httpserver.Options{
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, log.Named("httpserver"))
	if err := application.Attach(server); err != nil {
		log.WithError(err).Fatal("attach http server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application")
	}
	log.WithField("addr", cfg.Server.Addr()).Info("gas fee engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if err := application.Stop(context.Background()); err != nil {
		log.WithError(err).Error("shutdown")
	}
}
