// Package main provides the arena binary: a TCP battle server that pairs
// connected players into turn-based duels.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/frontend/tcp"
	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/gameserver"
	"github.com/cory-johannsen/arena/internal/observability"
	"github.com/cory-johannsen/arena/internal/server"
)

func main() {
	start := time.Now()

	fs := flag.NewFlagSet("arena", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file (optional)")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger, start); err != nil {
		logger.Error("arena exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger, start time.Time) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promReg)

	matchRules, err := match.RulesFromConfig(cfg.Game)
	if err != nil {
		return fmt.Errorf("game rules: %w", err)
	}
	combatRules, err := combat.RulesFromConfig(cfg.Game)
	if err != nil {
		return fmt.Errorf("game rules: %w", err)
	}

	roller := dice.NewRoller(dice.NewCryptoSource(), logger)
	registry := session.NewRegistry(cfg.Game.LineBufferSize, logger, metrics)
	matchmaker := match.NewMatchmaker(registry, roller, matchRules, logger, metrics)
	engine := combat.NewEngine(registry, matchmaker, roller, combatRules, logger, metrics)

	loop := gameserver.NewLoop(cfg.Arena, registry, engine, logger, metrics)
	acceptor := tcp.NewAcceptor(cfg.Arena, loop.Inbox(), logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("event-loop", &server.FuncService{
		StartFn: func() error { return loop.Run(context.Background()) },
		StopFn:  loop.Stop,
	})
	if cfg.Metrics.Enabled {
		lifecycle.Add("metrics", gameserver.NewHTTPService(cfg.Metrics, promReg, loop, logger))
	}
	lifecycle.Add("acceptor", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("starting arena",
		zap.String("addr", cfg.Arena.Addr()),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.String("metrics_addr", cfg.Metrics.Addr()),
		zap.Duration("startup", time.Since(start)),
	)
	return lifecycle.Run(context.Background())
}
