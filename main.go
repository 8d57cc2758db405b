package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/health"
	"github.com/doridoridoriand/connwatch/internal/log"
	"github.com/doridoridoriand/connwatch/internal/metrics"
	"github.com/doridoridoriand/connwatch/internal/notify"
	"github.com/doridoridoriand/connwatch/internal/ping"
	"github.com/doridoridoriand/connwatch/internal/scheduler"
	"github.com/doridoridoriand/connwatch/internal/state"
	"github.com/doridoridoriand/connwatch/internal/ui"
)

const version = "0.1.0"

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("connwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flagVersion, flagVersionShort bool
	fs.BoolVar(&flagVersion, "version", false, "show version")
	fs.BoolVar(&flagVersionShort, "v", false, "show version")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: connwatch [options] <config-file>\n\n")
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if flagVersion || flagVersionShort {
		fmt.Fprintf(stdout, "connwatch version %s\n", version)
		return 0
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 1
	}
	configPath := fs.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := log.NewLogger(log.Options{
		Dir:     cfg.Global.LogDir,
		Level:   cfg.Global.LogLevel,
		Console: cfg.Global.UIDisable,
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialise logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	pinger, err := newPinger(cfg.Global.Pinger, logger)
	if err != nil {
		logger.Error("pinger init failed", zap.Error(err))
		fmt.Fprintf(stderr, "failed to initialise pinger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("connwatch starting",
		zap.String("version", version),
		zap.String("config", configPath),
		zap.Int("targets", len(cfg.Targets)),
		zap.String("pinger", string(cfg.Global.Pinger)),
	)
	if err := run(ctx, cfg, pinger, logger); err != nil {
		logger.Error("connwatch stopped with error", zap.Error(err))
		fmt.Fprintf(stderr, "connwatch: %v\n", err)
		return 1
	}
	logger.Info("connwatch stopped")
	return 0
}

func newPinger(mode config.PingerMode, logger *zap.Logger) (ping.Pinger, error) {
	switch mode {
	case config.PingerExternal:
		return ping.NewExternalPinger(), nil
	case config.PingerICMP:
		p, err := ping.NewICMPPinger()
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := ping.NewICMPPinger()
		if err != nil {
			logger.Warn("icmp pinger unavailable, using system ping", zap.Error(err))
			return ping.NewExternalPinger(), nil
		}
		return ping.NewFallbackPinger(p, ping.NewExternalPinger()), nil
	}
}

type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	outcomes   chan ping.Outcome
	aggregator *state.Aggregator
	scheduler  *scheduler.Impl
	registry   *prometheus.Registry
}

func newApp(cfg *config.Config, pinger ping.Pinger, logger *zap.Logger) *app {
	g := cfg.Global
	thresholds := health.Thresholds{
		Fast:         g.FastThreshold,
		Slow:         g.SlowThreshold,
		FailureLimit: g.FailureThreshold,
	}
	outcomes := make(chan ping.Outcome, len(cfg.Targets))
	prober := ping.NewProber(pinger, g.ProbeTimeout, logger)
	return &app{
		cfg:        cfg,
		logger:     logger,
		outcomes:   outcomes,
		aggregator: state.NewAggregator(cfg.Targets, thresholds, g.WindowSize, logger),
		scheduler:  scheduler.NewScheduler(cfg.Targets, prober, g.ProbeCadence, outcomes, logger),
		registry:   prometheus.NewRegistry(),
	}
}

func run(ctx context.Context, cfg *config.Config, pinger ping.Pinger, logger *zap.Logger) error {
	return newApp(cfg, pinger, logger).run(ctx)
}

// run starts every component and blocks until ctx is cancelled or one of
// them stops. A nil return means a requested shutdown.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := a.cfg.Global
	logger := a.logger

	sink, closeSinks := buildSinks(ctx, g, a.registry, logger)
	defer closeSinks()

	engine := notify.NewEngine(a.aggregator, sink, notify.Config{
		PollInterval:    g.PollInterval,
		RepeatInterval:  g.RepeatInterval,
		AnnounceInitial: g.AnnounceInitial,
	}, logger)

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Any component returning ends the whole process.
			defer cancel()
			err := fn(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("component stopped", zap.String("component", name), zap.Error(err))
			errMu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			errMu.Unlock()
		}()
	}

	start("aggregator", func(ctx context.Context) error { return a.aggregator.Run(ctx, a.outcomes) })
	start("scheduler", a.scheduler.Run)
	start("notify", engine.Run)

	if g.MetricsListen != "" {
		a.registry.MustRegister(metrics.NewCollector(g.MetricsMode, a.aggregator))
		router := metrics.NewServer(a.registry, a.aggregator, g.CORSOrigins, logger).Router()
		start("metrics", func(ctx context.Context) error {
			return metrics.Serve(ctx, g.MetricsListen, router, logger)
		})
	}

	if !g.UIDisable {
		start("ui", ui.New(g, a.aggregator).Run)
	}

	wg.Wait()
	return firstErr
}

// buildSinks assembles the notification fan-out. The returned func releases
// connections held by the sinks.
func buildSinks(ctx context.Context, g config.GlobalOptions, reg prometheus.Registerer, logger *zap.Logger) (notify.Sink, func()) {
	sinks := notify.Multi{
		notify.NewLogSink(logger),
		metrics.NewEventCounter(reg),
	}
	if w := notify.NewWebhook(g.WebhookURL); w != nil {
		sinks = append(sinks, w)
		logger.Info("webhook sink enabled")
	}

	closers := []func(){}
	if g.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: g.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis not reachable at startup", zap.String("addr", g.RedisAddr), zap.Error(err))
		}
		cancel()
		sinks = append(sinks, notify.NewRedisPublisher(rdb, g.RedisChannel))
		closers = append(closers, func() { _ = rdb.Close() })
		logger.Info("redis sink enabled", zap.String("addr", g.RedisAddr))
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
