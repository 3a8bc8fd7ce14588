package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/allowance/internal/app"
	"github.com/fatflowers/allowance/internal/app/service/maintenance"
)

var runOnce = flag.Bool("once", false, "run the daily routine once and exit")

// registerCron schedules the daily maintenance routine at 02:00 UTC.
func registerCron(lc fx.Lifecycle, log *zap.SugaredLogger, svc *maintenance.Service) {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc("0 2 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := svc.RunDaily(ctx, time.Now().UTC()); err != nil {
			log.Errorf("daily maintenance failed: %v", err)
		}
	})
	if err != nil {
		log.Errorf("failed to schedule daily maintenance: %v", err)
		panic(err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting maintenance scheduler", "spec", "0 2 * * *")
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping maintenance scheduler")
			stop := c.Stop()
			select {
			case <-stop.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}

// runOnceAndShutdown executes the routine immediately and asks fx to exit.
func runOnceAndShutdown(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.SugaredLogger, svc *maintenance.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
				defer cancel()
				if err := svc.RunDaily(runCtx, time.Now().UTC()); err != nil {
					log.Errorf("daily maintenance failed: %v", err)
					_ = sd.Shutdown(fx.ExitCode(1))
					return
				}
				_ = sd.Shutdown()
			}()
			return nil
		},
	})
}

func main() {
	flag.Parse()

	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	opts := []fx.Option{app.Services}
	if *runOnce {
		opts = append(opts, fx.Invoke(runOnceAndShutdown))
	} else {
		opts = append(opts, fx.Invoke(registerCron))
	}

	a := fx.New(opts...)
	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to start cron app: %v", err)
		exitCode = 1
		return
	}

	sig := <-a.Wait()
	exitCode = sig.ExitCode

	stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to stop cron app: %v", err)
		exitCode = 1
	}
}
