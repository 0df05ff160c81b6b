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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/fleet-automation/internal/auth"
	"github.com/ukydev/fleet-automation/internal/automation"
	"github.com/ukydev/fleet-automation/internal/config"
	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/events"
	"github.com/ukydev/fleet-automation/internal/events/mqtt"
	"github.com/ukydev/fleet-automation/internal/events/nats"
	"github.com/ukydev/fleet-automation/internal/handlers"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.WithError(err).Fatal("invalid log settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
	logger.Info("server stopped")
}

// app is the wired service: the store, the engine on top of it and the
// HTTP handler exposing both.
type app struct {
	store     db.Store
	engine    *automation.Engine
	handler   http.Handler
	scheduler *automation.Scheduler
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	publisher, err := buildPublisher(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Warn("closing alert publisher")
		}
	})

	policies, err := config.LoadDuePolicies(cfg.MaintenancePolicyFile)
	if err != nil {
		a.close()
		return nil, err
	}

	a.engine = automation.New(store, automation.Options{
		Logger:      logger,
		Publisher:   publisher,
		DuePolicies: policies,
		FeedLimit:   cfg.FeedLimit,
		ScanOnRead:  cfg.FeedScanOnRead,
	})
	a.scheduler = automation.NewScheduler(cfg.ScanInterval, logger, a.engine.Scanners()...)
	a.handler = handlers.NewRouter(handlers.RouterConfig{
		Engine:          a.engine,
		Auth:            auth.FromConfig(cfg),
		Users:           store,
		Logger:          logger,
		RateLimit:       cfg.RateLimitRequests,
		RateLimitWindow: time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
	})
	return a, nil
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{"addr": srv.Addr, "store": cfg.StoreDriver, "broker": cfg.AlertBroker}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildStore opens the configured store. The returned func releases it.
func buildStore(ctx context.Context, cfg config.Config) (db.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return db.NewMemoryStore(), func() {}, nil
	case config.StoreMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		store := db.NewMongoStore(client.Database(cfg.MongoDB))
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, err
		}
		return store, disconnect, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func buildPublisher(cfg config.Config) (events.Publisher, error) {
	switch cfg.AlertBroker {
	case config.BrokerNone, "":
		return events.NoopPublisher{}, nil
	case config.BrokerNATS:
		p, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BrokerMQTT:
		p, err := mqtt.New(cfg.MQTTBroker, cfg.MQTTTopic, cfg.MQTTClientID)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown alert broker %q", cfg.AlertBroker)
	}
}
