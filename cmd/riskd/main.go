// Command riskd serves impact calculations over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/hazard-impact/internal/cache"
	"github.com/mohammed-shakir/hazard-impact/internal/cache/redisstore"
	"github.com/mohammed-shakir/hazard-impact/internal/core/config"
	"github.com/mohammed-shakir/hazard-impact/internal/core/health"
	"github.com/mohammed-shakir/hazard-impact/internal/core/httpclient"
	"github.com/mohammed-shakir/hazard-impact/internal/core/observability"
	"github.com/mohammed-shakir/hazard-impact/internal/core/server"
	"github.com/mohammed-shakir/hazard-impact/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/hazard-impact/internal/logger"
	"github.com/mohammed-shakir/hazard-impact/internal/metrics"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin"
	"github.com/mohammed-shakir/hazard-impact/internal/plugin/catalog"
	_ "github.com/mohammed-shakir/hazard-impact/internal/plugin/earthquake"
	"github.com/mohammed-shakir/hazard-impact/internal/service"
	"github.com/mohammed-shakir/hazard-impact/internal/storage"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	catalogFlag := flag.String("catalog", "", "HCL file of extra impact functions (overrides PLUGIN_CATALOG)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if *catalogFlag != "" {
		cfg.PluginCatalog = *catalogFlag
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.EqualFold(cfg.LogFormat, "console"),
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Service:   "riskd",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 2
	}

	var p *metrics.Provider
	if cfg.MetricsEnabled {
		p = metrics.Init(metrics.Config{
			Enabled: true,
			Path:    cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer(), true)
	} else {
		observability.Init(nil, false)
	}
	observability.ExposeBuildInfo(Version)

	if cfg.PluginCatalog != "" {
		fns, err := catalog.Load(cfg.PluginCatalog)
		if err != nil {
			appLog.Error("load plugin catalog", "path", cfg.PluginCatalog, "err", err)
			return 1
		}
		if err := catalog.Register(plugin.Default, fns); err != nil {
			appLog.Error("register catalog functions", "err", err)
			return 1
		}
	}
	appLog.Info("starting riskd",
		"addr", cfg.Addr,
		"version", Version,
		"geoserver", cfg.GeoServerURL,
		"functions", plugin.Default.Names())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var remote cache.Remote
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithDB(cfg.RedisDB), redisstore.WithOpTimeout(cfg.CacheOpTimeout))
		if err != nil {
			appLog.Error("redis unavailable", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		remote = rc
	}
	metaCache := cache.New(cache.Config{
		Size:      cfg.MetadataCacheSize,
		TTL:       cfg.MetadataCacheTTL,
		OpTimeout: cfg.CacheOpTimeout,
	}, remote, appLog)

	ows := storage.NewOWS(appLog, httpclient.NewOutbound(cfg.OWSTimeout))
	poller := storage.NewPoller(ows, appLog)
	poller.Attempts = cfg.MetadataRetries
	poller.Backoff = cfg.MetadataBackoff
	store := storage.NewCached(poller, metaCache)

	svc := service.New(store, plugin.Default, service.Options{
		OutputDir:        cfg.OutputDir,
		GeotransformRTol: cfg.GeotransformRTol,
		Scaling:          cfg.DensityScaling,
		H3Resolution:     cfg.H3Res,
	}, appLog)

	deps := server.Deps{Calculator: svc}
	if p != nil {
		deps.Metrics = p.Handler()
		deps.MetricsPath = p.Path()
	}

	if cfg.Invalidation.Enabled {
		kcfg := kafkaconsumer.NewConfig(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID)
		consumer := kafkaconsumer.New(kcfg, appLog, store)
		deps.Ready = consumer
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("layer update consumer stopped", "err", err)
			}
		}()
	} else {
		deps.Ready = health.Always{}
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
