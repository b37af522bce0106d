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

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/piste-live-backend/internal/config"
	"github.com/DoyleJ11/piste-live-backend/internal/httpapi"
	"github.com/DoyleJ11/piste-live-backend/internal/hub"
	"github.com/DoyleJ11/piste-live-backend/internal/logging"
	"github.com/DoyleJ11/piste-live-backend/internal/notify"
	"github.com/DoyleJ11/piste-live-backend/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	pub, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pub.Close()) }()

	events := notify.NewDispatcher(pub, cfg.EventBuffer, log)

	// Tournaments live under their own context so they stop before the
	// dispatcher drains.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	h := hub.NewHub(hubCtx, hub.Config{
		Store:        st,
		Events:       events,
		BoutRules:    cfg.Rules.Bout(),
		TickInterval: cfg.Rules.TickInterval,
		Logger:       log,
	})
	if err := h.RestoreAll(ctx); err != nil {
		return fmt.Errorf("restore tournaments: %w", err)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:         h,
			Log:         log,
			Rules:       cfg.Rules.Engine(),
			CORSOrigins: cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Run(dispatchCtx)
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		serr := srv.Shutdown(shutdownCtx)

		h.Inbox() <- hub.ShutdownHub{}
		<-h.Done()
		stopDispatch()
		return serr
	})
	return g.Wait()
}

func openStore(cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, tournaments are kept in memory only")
		return store.NewMemoryStore(), nil
	}
	return store.OpenPostgres(cfg.DatabaseURL, log)
}

func openPublisher(ctx context.Context, cfg config.Config, log *zap.Logger) (notify.Publisher, error) {
	logPub := notify.LogPublisher{Log: log}
	if cfg.NATSURL == "" {
		return logPub, nil
	}
	js := notify.DefaultJetStreamConfig()
	js.URL = cfg.NATSURL
	js.StreamName = cfg.NATSStream
	js.SubjectPrefix = cfg.NATSSubjectPrefix
	p, err := notify.NewJetStreamPublisher(ctx, js, log)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return notify.Multi{p, logPub}, nil
}
