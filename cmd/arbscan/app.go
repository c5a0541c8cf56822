package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/config"
	"arbscan/internal/evaluator"
	"arbscan/internal/metrics"
	"arbscan/internal/news"
	"arbscan/internal/scanner"
	"arbscan/internal/sink"
	"arbscan/internal/venue/registry"
)

// app bundles the long-lived pieces every subcommand needs.
type app struct {
	cfg     config.Config
	reg     *registry.Registry
	eval    *evaluator.Evaluator
	engine  *news.Engine
	out     sink.Sink
	metrics *metrics.Server
	redis   *sink.RedisSink
}

// newApp loads config and wires the registry, news engine, evaluator, sink
// and metrics server.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.Options{
		Exclude:        cfg.ExcludeExchanges,
		BybitAPIKey:    cfg.BybitAPIKey,
		BybitAPISecret: cfg.BybitAPISecret,
		GateAPIKey:     cfg.GateAPIKey,
		GateAPISecret:  cfg.GateAPISecret,
	})

	var x *news.XClient
	if cfg.XBearerToken != "" {
		x = news.NewXClient(cfg.XBearerToken, cfg.XNewsMaxResults,
			time.Duration(cfg.XNewsCacheTTLSec)*time.Second)
	}
	engine := news.NewEngine(news.Options{
		DaysBack:      cfg.NewsDaysBack,
		CacheTTL:      cfg.NewsCacheTTL(),
		BinanceCookie: cfg.BinanceCookie,
		X:             x,
	})

	a := &app{
		cfg:    cfg,
		reg:    reg,
		eval:   evaluator.New(reg.All(), engine),
		engine: engine,
	}

	sinks := []sink.Sink{sink.NewLogSink()}
	if cfg.RedisAddr != "" {
		rs, err := sink.NewRedisSink(cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.Warn().Err(err).Msg("Redis sink unavailable, falling back to log only")
		} else {
			sinks = append(sinks, rs)
			a.redis = rs
		}
	}
	a.out = sink.NewMulti(sinks...)

	if cfg.MetricsAddr != "" {
		a.metrics = metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := a.metrics.Start(); err != nil {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}
	return a, nil
}

func (a *app) scanner() *scanner.Scanner {
	return scanner.New(a.reg.All(), a.eval, a.cfg, a.out)
}

func (a *app) newsEngine() *news.Engine {
	return a.engine
}

func (a *app) close() {
	a.reg.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping metrics server")
		}
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func exitOnErr(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
}
