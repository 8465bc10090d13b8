// Package main is the entry point for the real-time microstructure signal
// engine: it wires the bus consumer, the five strategies, the depth
// analyzer, the runtime configuration manager, and the REST/metrics surface
// together and runs until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atlas-desktop/signal-engine/internal/api"
	"github.com/atlas-desktop/signal-engine/internal/bus"
	"github.com/atlas-desktop/signal-engine/internal/config"
	"github.com/atlas-desktop/signal-engine/internal/configstore"
	"github.com/atlas-desktop/signal-engine/internal/depthanalyzer"
	"github.com/atlas-desktop/signal-engine/internal/metrics"
	"github.com/atlas-desktop/signal-engine/internal/router"
	"github.com/atlas-desktop/signal-engine/internal/signalmodel"
	"github.com/atlas-desktop/signal-engine/internal/strategy"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/JSON bootstrap config file (optional)")
	flag.Parse()

	v := loadBootstrapConfig(*configPath)

	logger := setupLogger(v.GetString("log.level"))
	defer logger.Sync()

	logger.Info("starting signal engine",
		zap.String("bus_url", v.GetString("bus.url")),
		zap.String("inbound_subject", v.GetString("bus.inbound_subject")),
		zap.String("outbound_subject", v.GetString("bus.outbound_subject")),
		zap.String("api_addr", v.GetString("api.addr")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := connectConfigStore(ctx, v, logger)
	configMgr := config.NewManager(storeOrNil(store), v.GetDuration("config.cache_ttl"), logger)
	analyzer := depthanalyzer.NewAnalyzer()

	baseQuantity, err := decimal.NewFromString(v.GetString("signal.base_quantity"))
	if err != nil {
		logger.Fatal("invalid signal.base_quantity", zap.Error(err))
	}
	adapter := signalmodel.NewAdapter(baseQuantity)

	emitter := metrics.NewEmitter(logger)

	consumer, err := bus.NewConsumer(bus.ConsumerConfig{
		URL:     v.GetString("bus.url"),
		Subject: v.GetString("bus.inbound_subject"),
		Group:   v.GetString("bus.queue_group"),
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to bus", zap.Error(err))
	}
	defer consumer.Close()

	publisher := bus.NewPublisher(consumer.Conn(), v.GetString("bus.outbound_subject"), logger)

	rtr := router.New(
		[]strategy.DepthStrategy{
			strategy.NewOrderBookSkewStrategy(),
			strategy.NewSpreadLiquidityStrategy(),
			strategy.NewIcebergDetectorStrategy(),
		},
		[]strategy.TradeStrategy{
			strategy.NewTradeMomentumStrategy(),
		},
		[]strategy.TickerStrategy{
			strategy.NewTickerVelocityStrategy(),
		},
		analyzer,
		configMgr,
		adapter,
		publisher,
		emitter,
		logger,
	)

	apiServer := api.NewServer(logger, api.Config{Addr: v.GetString("api.addr")}, configMgr, analyzer)
	apiServer.MountMetrics(promhttp.HandlerFor(emitter.Registry, promhttp.HandlerOpts{}))

	stopConsumer := make(chan struct{})
	go func() {
		if err := consumer.Run(rtr.Dispatch, stopConsumer); err != nil {
			logger.Error("consumer stopped with error", zap.Error(err))
		}
	}()

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server stopped with error", zap.Error(err))
		}
	}()

	go runBackgroundTasks(ctx, v, analyzer, emitter, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()
	close(stopConsumer)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during api server shutdown", zap.Error(err))
	}

	logger.Info("signal engine stopped")
}

// runBackgroundTasks drives the engine's periodic housekeeping: depth
// analyzer TTL eviction and heartbeat logging. The ConfigManager needs no
// periodic refresh task of its own beyond its per-entry cache TTL and the
// explicit /strategies/cache/refresh endpoint.
func runBackgroundTasks(ctx context.Context, v *viper.Viper, analyzer *depthanalyzer.Analyzer, emitter *metrics.Emitter, logger *zap.Logger) {
	sweepTicker := time.NewTicker(v.GetDuration("depth_analyzer.sweep_interval"))
	defer sweepTicker.Stop()

	heartbeatTicker := time.NewTicker(v.GetDuration("heartbeat.interval"))
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			if evicted := analyzer.Sweep(); evicted > 0 {
				logger.Debug("depth analyzer swept stale symbols", zap.Int("evicted", evicted))
			}
		case <-heartbeatTicker.C:
			emitter.EmitHeartbeat()
		}
	}
}

// connectConfigStore dials the document store with a bounded deadline. A
// failure here is logged and treated as degraded-mode startup rather than
// a fatal error: the engine still runs on env vars and compiled defaults
// when Mongo is unreachable.
func connectConfigStore(ctx context.Context, v *viper.Viper, logger *zap.Logger) *configstore.Store {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := configstore.New(dialCtx, v.GetString("mongo.uri"), v.GetString("mongo.database"))
	if err != nil {
		logger.Warn("document store unreachable at startup, running in degraded mode",
			zap.Error(err))
		return nil
	}
	return store
}

// storeOrNil adapts a possibly-nil *configstore.Store to the config.Store
// interface without the interface itself holding a non-nil wrapper around a
// nil pointer.
func storeOrNil(store *configstore.Store) config.Store {
	if store == nil {
		return nil
	}
	return store
}

// loadBootstrapConfig resolves process bootstrap settings (bus endpoint,
// topics, store URIs, cache TTLs, bind address) via viper. This is process
// wiring only, never a strategy's trading parameters, which always live in
// the ConfigManager.
func loadBootstrapConfig(path string) *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("bus.url", "nats://127.0.0.1:4222")
	v.SetDefault("bus.inbound_subject", "binance.marketdata.>")
	v.SetDefault("bus.outbound_subject", "signals.trading")
	v.SetDefault("bus.queue_group", "signal-engine-strategies")
	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "signal_engine")
	v.SetDefault("config.cache_ttl", 60*time.Second)
	v.SetDefault("depth_analyzer.sweep_interval", 60*time.Second)
	v.SetDefault("heartbeat.interval", 30*time.Second)
	v.SetDefault("api.addr", ":8090")
	v.SetDefault("signal.base_quantity", "1.0")

	v.SetEnvPrefix("SIGNAL_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			panic("signalengine: failed to read config file " + path + ": " + err.Error())
		}
	}

	return v
}

// setupLogger builds the console-encoded zap logger this engine shares
// across every component, colorized and ISO8601-timestamped.
func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("signalengine: failed to build logger: " + err.Error())
	}
	return logger
}
