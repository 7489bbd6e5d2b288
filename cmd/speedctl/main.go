package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/speedctl/internal/actuator"
	"codeberg.org/mutker/speedctl/internal/config"
	"codeberg.org/mutker/speedctl/internal/control"
	"codeberg.org/mutker/speedctl/internal/device"
	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/httpapi"
	"codeberg.org/mutker/speedctl/internal/logger"
	"codeberg.org/mutker/speedctl/internal/measure"
	"codeberg.org/mutker/speedctl/internal/metrics"
	"codeberg.org/mutker/speedctl/internal/pid"
	"codeberg.org/mutker/speedctl/internal/surface"
	"codeberg.org/mutker/speedctl/internal/telemetry"
	"codeberg.org/mutker/speedctl/internal/timer"
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Level:      cfg.LogLevel,
		IsService:  logger.IsService(),
		File:       cfg.LogFile,
		MaxSizeMB:  logMaxSizeMB,
		MaxBackups: logMaxBackups,
	})
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(cfg.PIDDir); err != nil {
		logger.FatalWithCode(asAppError(errors.ErrInitApp, err)).Msg("")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	err := run(ctx)
	if rmErr := pid.Remove(cfg.PIDDir); rmErr != nil {
		logger.Error().Err(rmErr).Msg("failed to remove PID file")
	}

	if err != nil {
		if errors.HasCode(err, errors.ErrPeripheralNotReady) {
			logger.FatalWithCode(asAppError(errors.ErrPeripheralNotReady, err)).Msg("")
		}
		logger.ErrorWithCode(asAppError(errors.ErrMainLoop, err)).Msg("")
		os.Exit(1)
	}

	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func asAppError(code errors.ErrorCode, err error) errors.Error {
	var e errors.Error
	if errors.As(err, &e) {
		return e
	}

	return errors.New().Wrap(code, err)
}

func openDevice(ctx context.Context, clk clock.Clock) (device.Device, error) {
	devCfg := device.Config{
		Backend:      cfg.Backend,
		PWMPeriod:    cfg.PWMPeriod,
		PWMFrequency: cfg.PWMFrequency,
		EdgePin:      cfg.EdgePin,
		PWMPin:       cfg.PWMPin,
		LEDPin:       cfg.LEDPin,
		SimFrequency: cfg.SimFrequency,
	}

	log := logger.For("device")

	var dev device.Device
	err := device.WaitReady(ctx, clk, cfg.ReadyAttempts, cfg.ReadyDelay, func() error {
		var err error
		dev, err = device.Open(clk, devCfg, log)
		return err
	}, log)
	if err != nil {
		return nil, err
	}

	return dev, nil
}

func openMetrics(clk clock.Clock) metrics.Collector {
	mcfg := metrics.Config{
		Enabled:      cfg.Metrics,
		DBPath:       cfg.MetricsDB,
		BatchSize:    cfg.MetricsBatch,
		BatchTimeout: cfg.MetricsFlush,
		Retention:    cfg.MetricsRetention,
	}

	collector, err := metrics.NewService(clk, mcfg, logger.For("metrics"))
	if err != nil {
		logger.ErrorWithContext(asAppError(errors.ErrInitMetrics, err), "metrics", "init").
			Msg("Metrics history unavailable, continuing without it")
		collector, _ = metrics.NewService(clk, metrics.Config{}, logger.For("metrics"))
	}

	return collector
}

func run(ctx context.Context) (err error) {
	clk := clock.New()

	dev, err := openDevice(ctx, clk)
	if err != nil {
		return err
	}

	tmr := timer.New(clk, cfg.TimerFrequency, cfg.CounterBits)
	est := measure.NewEstimator(clk, tmr, measure.Config{
		NoiseFloorTicks: cfg.NoiseFloorTicks,
		Window:          cfg.WatchdogWindow,
	})
	state := control.NewState(est, cfg.TimerFrequency)
	mapper := actuator.NewMapper(clk, dev, state, cfg.MaxSpeed, cfg.ActuatorInterval, logger.For("actuator"))
	collector := openMetrics(clk)
	reporter := telemetry.NewReporter(clk, telemetry.Options{
		Interval:       cfg.TelemetryInterval,
		TimerFrequency: cfg.TimerFrequency,
		PWMPeriod:      dev.Period(),
	}, est, state, mapper, collector, logger.For("telemetry"))
	adapter := surface.New(state, dev, reporter, logger.For("surface"))
	httpLog := logger.For("httpapi")
	server := httpapi.NewServer(cfg.Listen, httpapi.NewRouter(adapter, httpLog), httpLog)

	defer func() {
		err = multierr.Combine(err, mapper.Park(), collector.Close(), dev.Close())
	}()

	est.Start()
	defer est.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := dev.Run(gctx, est.EdgeHandler()); err != nil {
			return errors.New().Wrap(errors.ErrEdgeSource, err)
		}
		return nil
	})
	g.Go(func() error { return mapper.Run(gctx) })
	g.Go(func() error { return reporter.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	adapter.SetOnline()
	logger.Info().
		Str("backend", cfg.Backend).
		Str("listen", cfg.Listen).
		Uint32("pwm_period", dev.Period()).
		Uint32("max_speed", cfg.MaxSpeed).
		Msg("Controller running")

	return g.Wait()
}
