package server

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"SignalFusion/internal/services/feedback"
	"SignalFusion/internal/usecase"
	"SignalFusion/pkg/config"
	xhttp "SignalFusion/pkg/http"
	pkgkafka "SignalFusion/pkg/kafka"
	applogger "SignalFusion/pkg/logger"
)

// App owns the long-running parts of the daemon: the HTTP API, the decision
// scheduler, the threshold retuner and the outcome consumer.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	scheduler  *usecase.Scheduler
	retuner    *feedback.Retuner
	consumer   *pkgkafka.Consumer
}

// Components are built by DI; Consumer is nil when the outcome topic is not consumed.
// Stores and clients are closed by the DI cleanup, not by App.
type Components struct {
	HTTPServer *xhttp.Server
	Scheduler  *usecase.Scheduler
	Retuner    *feedback.Retuner
	Consumer   *pkgkafka.Consumer
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	return &App{
		cfg:        cfg,
		log:        l,
		httpServer: c.HTTPServer,
		scheduler:  c.Scheduler,
		retuner:    c.Retuner,
		consumer:   c.Consumer,
	}
}

// Run blocks until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start failed", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("group", a.cfg.Kafka.Consumer.GroupID))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.scheduler != nil {
		g.Go(func() error {
			a.scheduler.Run(gctx)
			return nil
		})
	}
	if a.retuner != nil {
		g.Go(func() error {
			a.retuner.Run(gctx)
			return nil
		})
	}
	a.log.Info("signalfusion started",
		applogger.Strings("pairs", a.cfg.Engine.Pairs),
		applogger.String("timeframe", a.cfg.Engine.Timeframe),
		applogger.String("store", a.cfg.Store.Backend),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	_ = g.Wait()
	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
